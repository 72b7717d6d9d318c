package workflow

import (
	"context"
	"sync"
)

// Registry tracks the live controller for each identity. A user works one
// step at a time, so mounting a step replaces and unmounts whatever
// controller that identity had before — there is never more than one
// deadline ticking per identity.
type Registry struct {
	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

// Mount constructs a controller via Mount and installs it as the
// identity's live controller, unmounting any predecessor.
func (r *Registry) Mount(ctx context.Context, cfg Config) *Controller {
	c := Mount(ctx, cfg)

	if cfg.Identity.IsZero() {
		return c
	}

	r.mu.Lock()
	prev := r.controllers[cfg.Identity.ID]
	r.controllers[cfg.Identity.ID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.Unmount()
	}
	return c
}

// Get returns the identity's live controller only if it serves the given
// step; a stale or missing controller returns nil and the caller remounts.
func (r *Registry) Get(identityID string, step int) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.controllers[identityID]
	if c == nil || c.Step().Number != step {
		return nil
	}
	return c
}

// Drop unmounts and forgets the identity's controller, if any.
func (r *Registry) Drop(identityID string) {
	r.mu.Lock()
	c := r.controllers[identityID]
	delete(r.controllers, identityID)
	r.mu.Unlock()

	if c != nil {
		c.Unmount()
	}
}

// Len reports how many controllers are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Shutdown unmounts everything, for server teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	cs := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		cs = append(cs, c)
	}
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range cs {
		c.Unmount()
	}
}
