// Package job defines the wire payload workers pop off Redis queues and the
// in-memory record a worker builds around one while it executes it.
package job

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Payload is the self-describing text form a job takes on the wire. Field
// names match the Ruby/PHP Resque protocol exactly so queues stay
// interoperable with other implementations writing the same Redis keys.
type Payload struct {
	ID    string          `json:"id"`
	Class string          `json:"class"`
	Args  json.RawMessage `json:"args"`
	Queue string          `json:"queue"`
}

// NewPayload builds a payload for enqueueing. args is marshaled to JSON;
// pass json.RawMessage(nil) or an empty slice/array literal for no args.
func NewPayload(class string, args interface{}, queue string) (*Payload, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job args: %w", err)
	}
	return &Payload{
		ID:    uuid.New().String(),
		Class: class,
		Args:  raw,
		Queue: queue,
	}, nil
}

// Encode serializes the payload to its wire form.
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// Decode parses a wire-form payload. Returns an error for malformed JSON;
// callers (the Queue Reservation component) are expected to treat a decode
// error as a malformed payload, not propagate it to job execution.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.Class == "" {
		return nil, fmt.Errorf("payload missing class")
	}
	return &p, nil
}

// UnmarshalArgs decodes the payload's argument list into dest.
func (p *Payload) UnmarshalArgs(dest interface{}) error {
	if len(p.Args) == 0 {
		return nil
	}
	return json.Unmarshal(p.Args, dest)
}

// Record is the in-memory object a worker builds around a Payload while it
// is assigned to that worker: the payload plus the worker identity holding
// it and an accumulating result slot. It exists only for the lifetime of
// one reservation; persisted state lives in the Status Store.
type Record struct {
	Payload *Payload
	Worker  string
	Result  json.RawMessage
}

// NewRecord binds a freshly-reserved payload to the worker that reserved it.
func NewRecord(p *Payload, workerID string) *Record {
	return &Record{Payload: p, Worker: workerID}
}
