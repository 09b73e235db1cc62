package async

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prisonops/lifecycle/errors"
)

// JobHandler executes the messages of one job type.
// Domain packages implement it; the worker pool routes by Name.
type JobHandler interface {
	// Execute runs the message. A nil return completes it; an error is retried
	// unless IsPermanent reports it as not retryable.
	Execute(ctx context.Context, m *Message) error

	// Name returns the handler name used to route messages.
	Name() string
}

// HandlerRegistry manages handlers by name.
// Thread-safe for concurrent registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a name, or nil.
func (r *HandlerRegistry) Get(name string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches a message to its registered handler.
// A message nobody handles is a permanent failure.
func (r *HandlerRegistry) Execute(ctx context.Context, m *Message) error {
	if m.HandlerName == "" {
		return Permanent(errors.New("message missing handler_name"))
	}

	handler := r.Get(m.HandlerName)
	if handler == nil {
		return Permanent(errors.Newf("no handler registered for handler name: %s", m.HandlerName))
	}
	return handler.Execute(ctx, m)
}
