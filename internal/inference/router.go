package inference

import (
	"context"

	"claimaudit/internal/registry"
)

// Router dispatches each call to the backend registered for the model's
// vendor, or to Default.
type Router struct {
	Registry *registry.Registry
	Backends map[string]Client
	Default  Client
}

func (r *Router) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	return r.clientFor(modelID).Invoke(ctx, modelID, payload)
}

func (r *Router) clientFor(modelID string) Client {
	if r.Registry != nil {
		if p, ok := r.Registry.Find(modelID); ok {
			if c, ok := r.Backends[p.Vendor]; ok && c != nil {
				return c
			}
		}
	}
	if r.Default == nil {
		return Disabled{}
	}
	return r.Default
}
