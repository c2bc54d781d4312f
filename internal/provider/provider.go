// Package provider defines enrichment providers and their adapters.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/leadscore/internal/model"
)

// Result is one provider's contribution to an enrichment.
type Result struct {
	Provider string                 `json:"provider"`
	Facts    *model.EnrichmentFacts `json:"facts"`
	CostUSD  float64                `json:"cost_usd"`
	Raw      string                 `json:"-"`
}

// Provider enriches a contact. A returned error, or facts that fail to
// parse, make the provider's result absent for that job.
type Provider interface {
	Name() string
	Enrich(ctx context.Context, c *model.Contact) (*Result, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns the registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
