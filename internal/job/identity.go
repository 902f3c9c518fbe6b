package job

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is a worker's primary key: host:pid:queues, stable for the life
// of the worker process. queues is the comma-joined declared queue list in
// declaration order (including a literal "*" if that was declared).
type Identity struct {
	Host   string
	PID    int
	Queues []string
}

// String renders the identity in its canonical host:pid:queues form.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%d:%s", id.Host, id.PID, strings.Join(id.Queues, ","))
}

// ParseIdentity parses a worker id string. Only the first two colons are
// split on, so a queue name containing a colon does not break parsing.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("malformed worker id %q: expected host:pid:queues", s)
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return Identity{}, fmt.Errorf("malformed worker id %q: pid is not numeric: %w", s, err)
	}
	var queues []string
	if parts[2] != "" {
		queues = strings.Split(parts[2], ",")
	}
	return Identity{Host: parts[0], PID: pid, Queues: queues}, nil
}

// CanonicalHost normalizes a hostname for cross-reporting comparison
// (lowercase, trailing-dot stripped), so reports of the same name that
// differ only in case or a trailing dot match. An FQDN and its short form
// still differ; this does not attempt full DNS canonicalization; see
// DESIGN.md for why that is out of scope.
func CanonicalHost(h string) string {
	return strings.ToLower(strings.TrimSuffix(h, "."))
}
