package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
)

// Factory constructs a gateway. It runs at most once per identifier.
type Factory func() (Gateway, error)

// Registry maps gateway identifiers to lazily built, memoized instances.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Gateway),
	}
}

// Register adds or replaces the factory for id. Replacing drops a built instance.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	delete(r.instances, id)
}

func (r *Registry) Get(id string) (Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gw, ok := r.instances[id]; ok {
		return gw, nil
	}
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, id)
	}
	gw, err := f()
	if err != nil {
		return nil, fmt.Errorf("build gateway %s: %w", id, err)
	}
	r.instances[id] = gw
	return gw, nil
}

func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Available returns the configured gateways ordered by identifier. Gateways whose
// factory fails are left out.
func (r *Registry) Available() []Gateway {
	var out []Gateway
	for _, id := range r.Identifiers() {
		gw, err := r.Get(id)
		if err != nil || !gw.IsAvailable() {
			continue
		}
		out = append(out, gw)
	}
	return out
}

func (r *Registry) AvailableFor(currency string) []Gateway {
	var out []Gateway
	for _, gw := range r.Available() {
		if Supports(gw, currency) {
			out = append(out, gw)
		}
	}
	return out
}

// Resolve returns the gateway for id only when it is configured and accepts currency.
func (r *Registry) Resolve(id, currency string) (Gateway, error) {
	gw, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !gw.IsAvailable() {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, id)
	}
	if currency != "" && !Supports(gw, currency) {
		return nil, fmt.Errorf("%w: %s does not accept %s", domain.ErrCurrencyNotSupported, id, currency)
	}
	return gw, nil
}
