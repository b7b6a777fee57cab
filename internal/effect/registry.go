// Package effect holds the side-effect handlers a transition may invoke on
// commit. Handlers are registered by name at startup and referenced from
// definition files; the engine has no knowledge of what a handler talks to.
package effect

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opero/lifeline/model"
)

// Handler is an injected side-effect capability. Apply runs between
// validation and commit: an error aborts the whole transition with no state
// mutation and no history append. Handlers that touch external systems own
// their own timeouts and transactional boundaries.
type Handler interface {
	// Name returns the unique handler name used in definition files.
	Name() string

	// Apply executes the side-effect for the given document and payload.
	Apply(ctx context.Context, rctx *model.RequestContext, doc model.Document, payload model.Payload) error
}

// Func adapts a plain function to the Handler interface.
type Func struct {
	HandlerName string
	Fn          func(ctx context.Context, rctx *model.RequestContext, doc model.Document, payload model.Payload) error
}

// Name implements Handler.
func (f Func) Name() string { return f.HandlerName }

// Apply implements Handler.
func (f Func) Apply(ctx context.Context, rctx *model.RequestContext, doc model.Document, payload model.Payload) error {
	return f.Fn(ctx, rctx, doc, payload)
}

// Registry stores named side-effect handlers and provides lookup by name.
// It is safe for concurrent use after initial registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler to the registry under its Name(). Panics if a
// handler with the same name is already registered, since this indicates a
// wiring mistake at startup.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		panic(fmt.Sprintf("effect: handler %q already registered", h.Name()))
	}
	r.handlers[h.Name()] = h
}

// Get returns the handler registered under the given name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered handler names, sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
