package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/target/mmk-gatekeeper/internal/ports"
)

var (
	// ErrRegistrySealed is returned when registration is attempted after the registry was sealed.
	ErrRegistrySealed = errors.New("strategy registry is sealed")
	// ErrUnknownStrategy is returned by Lookup for names that were never registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// StrategyRegistry is the ordered, configuration-time list of strategy definitions.
// Insertion order is evaluation order. Once sealed it is read-only and safe to share
// between concurrent requests.
type StrategyRegistry struct {
	mu     sync.RWMutex
	defs   []ports.StrategyDefinition
	sealed bool
}

// NewStrategyRegistry creates a registry holding defs in order.
func NewStrategyRegistry(defs ...ports.StrategyDefinition) (*StrategyRegistry, error) {
	r := &StrategyRegistry{}
	if err := r.Register(defs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register appends defs after the existing entries. Existing order is never changed.
func (r *StrategyRegistry) Register(defs ...ports.StrategyDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}

	seen := make(map[string]struct{}, len(r.defs)+len(defs))
	for _, d := range r.defs {
		seen[d.Name] = struct{}{}
	}
	for _, d := range defs {
		if err := validateDefinition(d); err != nil {
			return err
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("strategy %q already registered", d.Name)
		}
		seen[d.Name] = struct{}{}
	}

	r.defs = append(r.defs, defs...)
	return nil
}

// Replace swaps the whole set for defs.
func (r *StrategyRegistry) Replace(defs ...ports.StrategyDefinition) error {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return ErrRegistrySealed
	}
	previous := r.defs
	r.defs = nil
	r.mu.Unlock()

	if err := r.Register(defs...); err != nil {
		r.mu.Lock()
		r.defs = previous
		r.mu.Unlock()
		return err
	}
	return nil
}

// Seal freezes the registry. Call it once configuration is done and before serving traffic.
func (r *StrategyRegistry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *StrategyRegistry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Ordered returns the evaluation order: override verbatim when non-nil, else the global order.
// The returned slice is a copy.
func (r *StrategyRegistry) Ordered(override []ports.StrategyDefinition) []ports.StrategyDefinition {
	if override != nil {
		return append([]ports.StrategyDefinition(nil), override...)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ports.StrategyDefinition(nil), r.defs...)
}

// Lookup resolves names to definitions in the order given. It is used to build
// per-route override lists from configuration.
func (r *StrategyRegistry) Lookup(names ...string) ([]ports.StrategyDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.StrategyDefinition, 0, len(names))
	for _, name := range names {
		def, ok := r.find(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		out = append(out, def)
	}
	return out, nil
}

// Names returns registered names in evaluation order.
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	return names
}

func (r *StrategyRegistry) find(name string) (ports.StrategyDefinition, bool) {
	for _, d := range r.defs {
		if d.Name == name {
			return d, true
		}
	}
	return ports.StrategyDefinition{}, false
}

func validateDefinition(d ports.StrategyDefinition) error {
	if d.Name == "" {
		return errors.New("strategy name is required")
	}
	if !d.Abstract && d.New == nil {
		return fmt.Errorf("strategy %q: constructor is required for concrete strategies", d.Name)
	}
	return nil
}
