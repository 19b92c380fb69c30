package reload

import (
	"fmt"
	"sort"

	"hotreload/pkg/interfaces"
	"hotreload/pkg/types"
)

// Registry maps a mode to its strategy. It is built once and read-only
// afterwards, so the flush driver can share it without locking.
type Registry struct {
	strategies map[types.Mode]interfaces.Strategy
}

// Entry binds a mode to a strategy for NewRegistry.
type Entry struct {
	Mode     types.Mode
	Strategy interfaces.Strategy
}

// NewRegistry validates and freezes the given entries.
func NewRegistry(entries ...Entry) (*Registry, error) {
	strategies := make(map[types.Mode]interfaces.Strategy, len(entries))
	for _, e := range entries {
		if err := e.Mode.Validate(); err != nil {
			return nil, fmt.Errorf("invalid mode %q: %w", e.Mode, err)
		}
		if e.Strategy == nil {
			return nil, fmt.Errorf("mode %q: %w", e.Mode, ErrNilStrategy)
		}
		if _, exists := strategies[e.Mode]; exists {
			return nil, fmt.Errorf("mode %q: %w", e.Mode, ErrDuplicateMode)
		}
		strategies[e.Mode] = e.Strategy
	}
	return &Registry{strategies: strategies}, nil
}

// Lookup returns the strategy for mode. A miss is not an error: callers
// skip unknown modes.
func (r *Registry) Lookup(mode types.Mode) (interfaces.Strategy, bool) {
	s, ok := r.strategies[mode]
	return s, ok
}

// Modes lists registered modes in lexical order.
func (r *Registry) Modes() []types.Mode {
	modes := make([]types.Mode, 0, len(r.strategies))
	for m := range r.strategies {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
