package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes the business logic of a named service.
type Handler interface {
	Invoke(ctx context.Context, service string, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, service string, payload json.RawMessage) (json.RawMessage, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, service string, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, service, payload)
}

// Registry maps service names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a service name, replacing any previous one.
func (r *Registry) Register(service string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[service] = h
}

// SetFallback sets the handler used for services without their own.
func (r *Registry) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Lookup returns the handler for service, or the fallback.
func (r *Registry) Lookup(service string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[service]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Services lists the explicitly registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke dispatches to the registered handler, so a Registry is itself a
// Handler.
func (r *Registry) Invoke(ctx context.Context, service string, payload json.RawMessage) (json.RawMessage, error) {
	h, ok := r.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, service)
	}
	return h.Invoke(ctx, service, payload)
}

// EchoHandler returns the payload wrapped in {"service", "echo"}. Useful for
// smoke tests and as a fallback in development.
type EchoHandler struct{}

// Invoke implements Handler.
func (EchoHandler) Invoke(_ context.Context, service string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(map[string]interface{}{
		"service": service,
		"echo":    payload,
	})
}
