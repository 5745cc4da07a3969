// Package strategy defines the pluggable repair strategies the governor
// dispatches decisions to, behind one uniform execute contract.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// Strategy is one repair action. Execute returns a plain result map the
// governor wraps and hands to the certifier; it must be idempotent-safe to
// invoke repeatedly within one cooldown window, since the governor
// deduplicates by time and rate, not by incident identity.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, targets []string) (map[string]any, error)
}

// Registry resolves strategies by decision action. The set is closed and
// bound at startup.
type Registry struct {
	mu         sync.RWMutex
	strategies map[contracts.Action]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[contracts.Action]Strategy)}
}

// Register binds a strategy to an action. Registering twice for the same
// action is a programming error.
func (r *Registry) Register(action contracts.Action, s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[action]; exists {
		return fmt.Errorf("strategy: action %s already registered", action)
	}
	r.strategies[action] = s
	return nil
}

// Resolve returns the strategy for an action, or ErrStrategyUnavailable.
func (r *Registry) Resolve(action contracts.Action) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrStrategyUnavailable, action)
	}
	return s, nil
}

// Actions lists the registered actions.
func (r *Registry) Actions() []contracts.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.Action, 0, len(r.strategies))
	for a := range r.strategies {
		out = append(out, a)
	}
	return out
}
