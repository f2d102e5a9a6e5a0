// Package runtime defines the handler contract every pipeline stage
// implements and the registry that binds a stage kind to its handler.
package runtime

import (
	"fmt"
	"sync"
)

// Handler is the contract a stage package implements.
//
// Type() returns the stage kind this handler is responsible for; it must
// exactly match the Task.Kind values the dispatcher leases. Run() performs
// the stage's work and returns an Outcome describing what should happen to
// the task next, rather than mutating state directly. Handlers must be
// side-effect safe under retries: a task may be re-leased and re-run after
// a partial execution left no trace of success.
type Handler interface {
	Type() string
	Run(ctx *Context) (Outcome, error)
}

// Registry is a concurrency-safe map of stage kind -> handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. At most one handler may serve a given kind;
// a second registration for the same kind is a startup wiring error.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for kind=%s", t)
	}
	r.handlers[t] = h
	return nil
}

// Get retrieves the handler responsible for kind. A miss is treated by
// the dispatcher as a fatal configuration error, not a retryable one.
func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}
