package extensions

import (
	"context"
	"sync"
)

// PayloadKind names an auxiliary run-payload extension point. Providers
// registered under a kind contribute extra payload that is merged verbatim
// into outgoing capsule run requests.
type PayloadKind string

const (
	// PayloadDirectorPack contributes director-pack state to a run
	PayloadDirectorPack PayloadKind = "director_pack"
	// PayloadNarrativeArc contributes narrative-arc state to a run
	PayloadNarrativeArc PayloadKind = "narrative_arc"
)

// Provider supplies an auxiliary payload for one run request. Returning an
// empty map or an error means the provider contributes nothing this time.
type Provider func(ctx context.Context, canvasID, nodeID string) (map[string]interface{}, error)

// Registry manages payload providers for extension points
type Registry struct {
	mu        sync.RWMutex
	providers map[PayloadKind][]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[PayloadKind][]Provider),
	}
}

// Register adds a provider for a payload kind
func (r *Registry) Register(kind PayloadKind, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[kind] = append(r.providers[kind], provider)
}

// Collect gathers every provider's payload keyed by kind. Provider failures
// drop that provider's contribution; they never fail the run.
func (r *Registry) Collect(ctx context.Context, canvasID, nodeID string) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]interface{})
	for kind, providers := range r.providers {
		for _, provider := range providers {
			payload, err := provider(ctx, canvasID, nodeID)
			if err != nil || len(payload) == 0 {
				continue
			}
			if existing, ok := merged[string(kind)].(map[string]interface{}); ok {
				for k, v := range payload {
					existing[k] = v
				}
			} else {
				merged[string(kind)] = payload
			}
		}
	}
	return merged
}

// Count returns the number of registered providers for a kind
func (r *Registry) Count(kind PayloadKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers[kind])
}
