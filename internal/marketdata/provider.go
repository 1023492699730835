// Package marketdata adapts external market data availability sources into the single question
// the resolver asks: can this requirement be satisfied directly by raw data, and as what?
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/depgraph/internal/value"
)

// AvailabilityProvider answers whether a requirement is directly satisfiable by market data.
// When it is, the returned specification satisfies the requirement and carries
// value.MarketDataFunction as its producer. Errors are infrastructure faults (I/O, timeouts),
// never "not available".
type AvailabilityProvider interface {
	GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error)
}

// ProviderFunc adapts a function to AvailabilityProvider.
type ProviderFunc func(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error)

// GetAvailability implements AvailabilityProvider.
func (f ProviderFunc) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	return f(ctx, requirement)
}

// None is a provider with no market data at all.
var None AvailabilityProvider = ProviderFunc(func(context.Context, value.ValueRequirement) (value.ValueSpecification, bool, error) {
	return value.ValueSpecification{}, false, nil
})

type staticEntry struct {
	valueName  string
	target     value.ComputationTarget
	properties value.ValueProperties
}

// StaticProvider serves availability from an in-memory list of values. Entries are matched in
// insertion order.
type StaticProvider struct {
	mu      sync.RWMutex
	entries []staticEntry
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Add registers an available value. Properties must be concrete.
func (p *StaticProvider) Add(valueName string, target value.ComputationTarget, properties value.ValueProperties) error {
	if valueName == "" {
		return fmt.Errorf("marketdata: value name is required")
	}
	if !properties.IsConcrete() {
		return fmt.Errorf("marketdata: %s on %s has wildcard properties %s", valueName, target, properties)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, staticEntry{valueName: valueName, target: target, properties: properties})
	return nil
}

// MustAdd is Add for fixtures; it panics on invalid input.
func (p *StaticProvider) MustAdd(valueName string, target value.ComputationTarget, properties value.ValueProperties) *StaticProvider {
	if err := p.Add(valueName, target, properties); err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of registered values.
func (p *StaticProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// GetAvailability implements AvailabilityProvider.
func (p *StaticProvider) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	if err := ctx.Err(); err != nil {
		return value.ValueSpecification{}, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.valueName != requirement.ValueName || e.target != requirement.Target {
			continue
		}
		if !e.properties.Satisfies(requirement.Constraints) {
			continue
		}
		return value.NewSpecification(e.valueName, e.target, e.properties, value.MarketDataFunction), true, nil
	}
	return value.ValueSpecification{}, false, nil
}

// UnionProvider asks each provider in turn and returns the first availability found.
// An error from any provider stops the search.
type UnionProvider struct {
	providers []AvailabilityProvider
}

// NewUnionProvider combines providers; nil entries are ignored.
func NewUnionProvider(providers ...AvailabilityProvider) *UnionProvider {
	filtered := make([]AvailabilityProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &UnionProvider{providers: filtered}
}

// GetAvailability implements AvailabilityProvider.
func (u *UnionProvider) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	for i, p := range u.providers {
		spec, ok, err := p.GetAvailability(ctx, requirement)
		if err != nil {
			return value.ValueSpecification{}, false, fmt.Errorf("marketdata: provider %d: %w", i, err)
		}
		if ok {
			return spec, true, nil
		}
	}
	return value.ValueSpecification{}, false, nil
}
