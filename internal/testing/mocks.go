package testing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/value"
)

// MockCatalog wraps a catalog, counting calls and optionally failing them.
type MockCatalog struct {
	mu       sync.RWMutex
	catalog  function.Catalog
	err      error
	failWhen func(value.ValueRequirement) bool
	block    chan struct{}
	calls    atomic.Int64
}

// NewMockCatalog creates a mock over catalog. A nil catalog offers no candidates.
func NewMockCatalog(catalog function.Catalog) *MockCatalog {
	return &MockCatalog{catalog: catalog}
}

// SetError makes calls fail with err. When match is non-nil only matching requirements fail.
func (m *MockCatalog) SetError(err error, match func(value.ValueRequirement) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.failWhen = match
}

// Block makes calls wait until the returned function is called.
func (m *MockCatalog) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the number of CandidatesFor calls.
func (m *MockCatalog) Calls() int64 {
	return m.calls.Load()
}

// CandidatesFor implements function.Catalog.
func (m *MockCatalog) CandidatesFor(ctx context.Context, requirement value.ValueRequirement) ([]function.Application, error) {
	m.calls.Add(1)
	m.mu.RLock()
	err, failWhen, block, catalog := m.err, m.failWhen, m.block, m.catalog
	m.mu.RUnlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil && (failWhen == nil || failWhen(requirement)) {
		return nil, err
	}
	if catalog == nil {
		return nil, nil
	}
	return catalog.CandidatesFor(ctx, requirement)
}

// MockAvailabilityProvider serves fixtures as market data, optionally failing.
type MockAvailabilityProvider struct {
	mu       sync.RWMutex
	fixtures []MarketDataFixture
	err      error
	calls    atomic.Int64
}

// NewMockAvailabilityProvider creates a provider over fixtures.
func NewMockAvailabilityProvider(fixtures ...MarketDataFixture) *MockAvailabilityProvider {
	return &MockAvailabilityProvider{fixtures: fixtures}
}

// SetError makes every call fail with err.
func (m *MockAvailabilityProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of GetAvailability calls.
func (m *MockAvailabilityProvider) Calls() int64 {
	return m.calls.Load()
}

// GetAvailability implements marketdata.AvailabilityProvider. The first fixture whose
// properties satisfy the requirement wins.
func (m *MockAvailabilityProvider) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return value.ValueSpecification{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return value.ValueSpecification{}, false, m.err
	}
	for _, f := range m.fixtures {
		if f.ValueName != requirement.ValueName || f.Target != requirement.Target {
			continue
		}
		if f.Properties.Satisfies(requirement.Constraints) {
			return value.NewSpecification(f.ValueName, f.Target, f.Properties, value.MarketDataFunction), true, nil
		}
	}
	return value.ValueSpecification{}, false, nil
}
