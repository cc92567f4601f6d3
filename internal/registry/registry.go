package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the set of logical components and resolves them for the
// dispatcher. Registration is one-shot: registering an id twice is an
// error, mirroring the reference registry's ValueError-on-duplicate rule.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Component
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{components: make(map[string]*Component)}
}

// Register adds component to the registry. It fails if the id already
// exists.
func (r *Registry) Register(c *Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[c.ID]; exists {
		return fmt.Errorf("registry: component %q already registered", c.ID)
	}
	r.components[c.ID] = c
	c.markRegistered()
	return nil
}

// Unregister removes a component, stopping it first if it was started.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	c, exists := r.components[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("registry: component %q not registered", id)
	}
	delete(r.components, id)
	r.mu.Unlock()

	if c.State() == Started {
		return c.Stop(ctx)
	}
	return nil
}

// Get resolves a component by id.
func (r *Registry) Get(id string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// All returns every registered component.
func (r *Registry) All() []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	return out
}

// StartAll starts every registered component. A single component's start
// failure is logged and does not prevent the others from starting.
func (r *Registry) StartAll(ctx context.Context) {
	for _, c := range r.All() {
		if err := c.Start(ctx); err != nil {
			slog.Error("registry: component failed to start", "component_id", c.ID, "error", err)
		}
	}
}

// StopAll stops every registered component, best-effort.
func (r *Registry) StopAll(ctx context.Context) {
	for _, c := range r.All() {
		if err := c.Stop(ctx); err != nil {
			slog.Error("registry: component failed to stop", "component_id", c.ID, "error", err)
		}
	}
}
