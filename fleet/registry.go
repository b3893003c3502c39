// Package fleet bundles the pluggable fleet-manager policies and the
// registry that resolves the configured class name to a constructor.
package fleet

import (
	"fmt"
	"sort"
	"sync"

	"dispatchsim/citymap"
	"dispatchsim/simulation"
)

// Factory builds a fleet manager against the agent-side map copy.
type Factory func(*citymap.CityMap) simulation.FleetManager

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a fleet manager available under the given class name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Lookup resolves a class name to its factory.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if factory, ok := registry[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("fleet: unknown fleet manager class %q (registered: %v)", name, registeredNamesLocked())
}

// Names lists the registered class names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registeredNamesLocked()
}

func registeredNamesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("RandomDestinationFleetManager", NewRandomDestinationFleetManager)
	Register("fleet.RandomDestinationFleetManager", NewRandomDestinationFleetManager)
	Register("GreedyNearestFleetManager", NewGreedyNearestFleetManager)
	Register("fleet.GreedyNearestFleetManager", NewGreedyNearestFleetManager)
}
