package adapter

import (
	"fmt"
	"sort"

	"github.com/ashpool37/dapbridge/pkg/syncmap"
)

// Registry is the process-wide mapping from adapter ID to implementation.
// It is populated during startup and read-only afterwards; there is no
// removal operation because the adapter catalog is fixed for the life of the
// process.
type Registry struct {
	adapters syncmap.Map[ID, Adapter]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter under its descriptor ID.
// Fails with ErrDuplicateAdapter if the ID is already taken.
func (r *Registry) Register(impl Adapter) error {
	id := impl.Descriptor().ID
	if id == "" {
		return fmt.Errorf("adapter descriptor has an empty ID")
	}
	if _, existed := r.adapters.LoadOrStore(id, impl); existed {
		return fmt.Errorf("%w: %q", ErrDuplicateAdapter, id)
	}
	return nil
}

// Resolve returns the adapter registered under the ID.
// Fails with ErrUnknownAdapter if absent; there are no partial matches.
func (r *Registry) Resolve(id ID) (Adapter, error) {
	impl, found := r.adapters.Load(id)
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, id)
	}
	return impl, nil
}

// Descriptors returns the registered adapter descriptors sorted by ID.
func (r *Registry) Descriptors() []Descriptor {
	var all []Descriptor
	r.adapters.Range(func(_ ID, impl Adapter) bool {
		all = append(all, impl.Descriptor())
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
