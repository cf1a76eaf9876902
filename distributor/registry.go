package distributor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aluiziolira/go-extract-catalog/config"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds an adapter factory to a distributor identifier. Concrete
// adapters register themselves in init; tests register fakes.
func Register(identifier string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[identifier] = factory
}

// Open builds the adapter registered for the profile's identifier.
func Open(profile *config.DistributorProfile) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[profile.Identifier]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for distributor %q", profile.Identifier)
	}
	return factory(profile)
}

// Registered lists the known distributor identifiers, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
