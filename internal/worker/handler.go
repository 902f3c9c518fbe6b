package worker

import (
	"context"
	"fmt"

	"github.com/emberqueue/ember/internal/job"
)

// HandlerFunc processes one job's payload and returns its result (nil for
// none) or an error. It is the fixed contract the external job-class
// resolver is expected to satisfy; this package only dispatches by class
// name, it does not attempt dynamic loading or reflection-based discovery.
type HandlerFunc func(context.Context, *job.Payload) ([]byte, error)

// HandlerRegistry resolves a job's class name to the HandlerFunc that
// performs it.
type HandlerRegistry struct {
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Register binds class to handler, overwriting any prior binding.
func (r *HandlerRegistry) Register(class string, handler HandlerFunc) {
	r.handlers[class] = handler
}

// Get looks up the handler bound to class.
func (r *HandlerRegistry) Get(class string) (HandlerFunc, bool) {
	h, ok := r.handlers[class]
	return h, ok
}

// Count returns the number of registered classes.
func (r *HandlerRegistry) Count() int {
	return len(r.handlers)
}

// Execute dispatches payload to its registered handler.
func (r *HandlerRegistry) Execute(ctx context.Context, p *job.Payload) ([]byte, error) {
	handler, ok := r.Get(p.Class)
	if !ok {
		return nil, fmt.Errorf("no handler registered for job class: %s", p.Class)
	}
	return handler(ctx, p)
}
