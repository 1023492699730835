package marketdata

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aristath/depgraph/internal/value"
	"golang.org/x/sync/singleflight"
)

type availability struct {
	spec value.ValueSpecification
	ok   bool
}

// CachingProvider memoizes answers of a slower (typically network or database backed) provider
// for the lifetime of one batch. Concurrent lookups of the same requirement share one call to
// the underlying provider. Errors are not cached.
type CachingProvider struct {
	underlying AvailabilityProvider
	entries    sync.Map // requirement key -> availability
	flight     singleflight.Group

	hits   int64
	misses int64
}

// NewCachingProvider wraps a provider.
func NewCachingProvider(underlying AvailabilityProvider) *CachingProvider {
	return &CachingProvider{underlying: underlying}
}

// GetAvailability implements AvailabilityProvider.
func (c *CachingProvider) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	key := requirement.Key()
	if cached, ok := c.entries.Load(key); ok {
		atomic.AddInt64(&c.hits, 1)
		a := cached.(availability)
		return a.spec, a.ok, nil
	}
	atomic.AddInt64(&c.misses, 1)

	// The shared call must outlive any one caller; each caller waits on its own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// A flight for this key may have finished between the Load above and DoChan.
		if cached, ok := c.entries.Load(key); ok {
			return cached, nil
		}
		spec, ok, err := c.underlying.GetAvailability(flightCtx, requirement)
		if err != nil {
			return nil, err
		}
		a := availability{spec: spec, ok: ok}
		actual, _ := c.entries.LoadOrStore(key, a)
		return actual, nil
	})
	select {
	case <-ctx.Done():
		return value.ValueSpecification{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return value.ValueSpecification{}, false, res.Err
		}
		a := res.Val.(availability)
		return a.spec, a.ok, nil
	}
}

// Stats returns hit and miss counts.
func (c *CachingProvider) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Reset drops every cached answer, e.g. when the available market data changes.
func (c *CachingProvider) Reset() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
