package redisgw

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// List operations back the per-queue Redis lists.

// LPush pushes value onto the head of list (used by enqueue: Resque lists
// grow at the head and are popped from the tail).
func (g *Gateway) LPush(ctx context.Context, list, value string) error {
	return g.client.LPush(ctx, list, value).Err()
}

// RPop pops one value from the tail of list. Returns ok=false on an empty
// list, never an error, so pollers can distinguish "no job" from a fault.
func (g *Gateway) RPop(ctx context.Context, list string) (string, bool, error) {
	v, err := g.client.RPop(ctx, list).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// BRPop blocks across multiple lists, popping from whichever has an entry
// first, Redis's own tie-break among simultaneously-ready lists. Returns
// ok=false if timeout elapses with nothing available.
func (g *Gateway) BRPop(ctx context.Context, timeout time.Duration, lists ...string) (list, value string, ok bool, err error) {
	res, err := g.client.BRPop(ctx, timeout, lists...).Result()
	if err == redis.Nil {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	// go-redis returns [list, value] on success.
	return res[0], res[1], true, nil
}

// LLen reports the length of list.
func (g *Gateway) LLen(ctx context.Context, list string) (int64, error) {
	return g.client.LLen(ctx, list).Result()
}

// Set operations back the "queues" and "workers" registries.

func (g *Gateway) SAdd(ctx context.Context, set, member string) error {
	return g.client.SAdd(ctx, set, member).Err()
}

func (g *Gateway) SRem(ctx context.Context, set, member string) error {
	return g.client.SRem(ctx, set, member).Err()
}

func (g *Gateway) SIsMember(ctx context.Context, set, member string) (bool, error) {
	return g.client.SIsMember(ctx, set, member).Result()
}

func (g *Gateway) SMembers(ctx context.Context, set string) ([]string, error) {
	return g.client.SMembers(ctx, set).Result()
}

// String operations back worker and status records.

// Get returns ok=false (not an error) when key is absent.
func (g *Gateway) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := g.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (g *Gateway) Set(ctx context.Context, key, value string) error {
	return g.client.Set(ctx, key, value, 0).Err()
}

// SetEx sets key with an expiry. A zero ttl means no expiry.
func (g *Gateway) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.client.Set(ctx, key, value, ttl).Err()
}

func (g *Gateway) Del(ctx context.Context, keys ...string) error {
	return g.client.Del(ctx, keys...).Err()
}

// Incr increments key (creating it at 0 first if absent) and returns the
// new value. Backs the global and per-worker processed/failed counters.
func (g *Gateway) Incr(ctx context.Context, key string) (int64, error) {
	return g.client.Incr(ctx, key).Result()
}

// Keys lists keys matching pattern. KEYS is O(n) over the keyspace; it is
// never called from the hot reservation path.
func (g *Gateway) Keys(ctx context.Context, pattern string) ([]string, error) {
	return g.client.Keys(ctx, pattern).Result()
}

// RPopLPush atomically moves an item from the tail of one list to the head
// of another, so the item is never dropped in between.
func (g *Gateway) RPopLPush(ctx context.Context, source, dest string) (string, bool, error) {
	v, err := g.client.RPopLPush(ctx, source, dest).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Eval runs a Lua script, for atomic check-and-act operations such as a
// lock's check-and-delete.
func (g *Gateway) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.client.Eval(ctx, script, keys, args...).Result()
}

// SetNX sets key only if absent, returning true if the set happened.
func (g *Gateway) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, key, value, ttl).Result()
}

// ZAdd adds member to a sorted set with the given score (a unix timestamp
// for the delayed-retry set).
func (g *Gateway) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return g.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRangeByScore returns members scored between min and max, inclusive.
func (g *Gateway) ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error) {
	return g.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
}

// ZRem removes member from a sorted set.
func (g *Gateway) ZRem(ctx context.Context, key, member string) error {
	return g.client.ZRem(ctx, key, member).Err()
}
