package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/depgraph/internal/database"
	"github.com/aristath/depgraph/internal/value"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd     = value.NewTarget(value.TargetCurrency, "USD")
	forward = value.NewProperties().With("Curve", "Forward")
)

func curveRequirement(constraints value.ValueProperties) value.ValueRequirement {
	return value.NewRequirement("YIELD_CURVE", usd, constraints)
}

func TestStaticProvider_GetAvailability(t *testing.T) {
	p := NewStaticProvider().MustAdd("YIELD_CURVE", usd, forward)

	tests := []struct {
		name        string
		requirement value.ValueRequirement
		available   bool
	}{
		{"unconstrained", curveRequirement(value.NewProperties()), true},
		{"matching constraint", curveRequirement(forward), true},
		{"wildcard constraint", curveRequirement(value.NewProperties().WithAny("Curve")), true},
		{"other curve", curveRequirement(value.NewProperties().With("Curve", "Discount")), false},
		{"other target", value.NewRequirement("YIELD_CURVE", value.NewTarget(value.TargetCurrency, "EUR"), forward), false},
		{"other value", value.NewRequirement("FX_RATE", usd, value.NewProperties()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok, err := p.GetAvailability(context.Background(), tt.requirement)
			require.NoError(t, err)
			assert.Equal(t, tt.available, ok)
			if ok {
				assert.True(t, spec.IsMarketData())
				assert.True(t, spec.Satisfies(tt.requirement))
			}
		})
	}
}

func TestStaticProvider_RejectsWildcards(t *testing.T) {
	p := NewStaticProvider()
	assert.Error(t, p.Add("YIELD_CURVE", usd, value.NewProperties().WithAny("Curve")))
	assert.Error(t, p.Add("", usd, forward))
	assert.Equal(t, 0, p.Len())
}

func TestStaticProvider_CancelledContext(t *testing.T) {
	p := NewStaticProvider().MustAdd("YIELD_CURVE", usd, forward)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.GetAvailability(ctx, curveRequirement(forward))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnionProvider(t *testing.T) {
	first := NewStaticProvider().MustAdd("SPOT", value.NewTarget(value.TargetSecurity, "S1"), value.NewProperties())
	second := NewStaticProvider().MustAdd("YIELD_CURVE", usd, forward)
	u := NewUnionProvider(first, nil, second)

	_, ok, err := u.GetAvailability(context.Background(), curveRequirement(forward))
	require.NoError(t, err)
	assert.True(t, ok)

	boom := errors.New("feed down")
	failing := NewUnionProvider(ProviderFunc(func(context.Context, value.ValueRequirement) (value.ValueSpecification, bool, error) {
		return value.ValueSpecification{}, false, boom
	}), second)
	_, _, err = failing.GetAvailability(context.Background(), curveRequirement(forward))
	assert.ErrorIs(t, err, boom)
}

func TestCachingProvider_DeduplicatesLookups(t *testing.T) {
	var calls int64
	underlying := ProviderFunc(func(ctx context.Context, r value.ValueRequirement) (value.ValueSpecification, bool, error) {
		atomic.AddInt64(&calls, 1)
		return value.NewSpecification(r.ValueName, r.Target, forward, value.MarketDataFunction), true, nil
	})
	c := NewCachingProvider(underlying)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := c.GetAvailability(context.Background(), curveRequirement(forward))
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	hits, misses := c.Stats()
	assert.Equal(t, int64(50), hits+misses)

	c.Reset()
	_, _, err := c.GetAvailability(context.Background(), curveRequirement(forward))
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestCachingProvider_DoesNotCacheErrors(t *testing.T) {
	var calls int64
	underlying := ProviderFunc(func(context.Context, value.ValueRequirement) (value.ValueSpecification, bool, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return value.ValueSpecification{}, false, errors.New("timeout")
		}
		return value.ValueSpecification{}, false, nil
	})
	c := NewCachingProvider(underlying)

	_, _, err := c.GetAvailability(context.Background(), curveRequirement(forward))
	assert.Error(t, err)
	_, ok, err := c.GetAvailability(context.Background(), curveRequirement(forward))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCachingProvider_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls int64
	started := make(chan struct{})
	release := make(chan struct{})
	underlying := ProviderFunc(func(ctx context.Context, r value.ValueRequirement) (value.ValueSpecification, bool, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-ctx.Done():
			return value.ValueSpecification{}, false, ctx.Err()
		case <-release:
		}
		return value.NewSpecification(r.ValueName, r.Target, forward, value.MarketDataFunction), true, nil
	})
	c := NewCachingProvider(underlying)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetAvailability(ctx, curveRequirement(forward))
		firstErr <- err
	}()
	<-started

	type outcome struct {
		ok  bool
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		_, ok, err := c.GetAvailability(context.Background(), curveRequirement(forward))
		second <- outcome{ok: ok, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.ok)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func setupSnapshotDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(database.SnapshotSchema)
	require.NoError(t, err)

	return db
}

func TestSnapshotProvider_PutAndGet(t *testing.T) {
	db := setupSnapshotDB(t)
	defer db.Close()

	p := NewSnapshotProvider(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, "YIELD_CURVE", usd, value.NewProperties().With("Curve", "Discount"), "test"))
	require.NoError(t, p.Put(ctx, "YIELD_CURVE", usd, forward, "test"))
	assert.Error(t, p.Put(ctx, "YIELD_CURVE", usd, value.NewProperties().WithAny("Curve"), "test"))

	spec, ok, err := p.GetAvailability(ctx, curveRequirement(forward))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, spec.Properties.Equal(forward))
	assert.True(t, spec.IsMarketData())

	_, ok, err = p.GetAvailability(ctx, curveRequirement(value.NewProperties().With("Curve", "Basis")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotProvider_SkipsCorruptRows(t *testing.T) {
	db := setupSnapshotDB(t)
	defer db.Close()

	_, err := db.Exec(`INSERT INTO market_data (value_name, target, properties) VALUES ('YIELD_CURVE', 'CURRENCY~USD', 'not json')`)
	require.NoError(t, err)

	p := NewSnapshotProvider(db, zerolog.Nop())
	_, ok, err := p.GetAvailability(context.Background(), curveRequirement(value.NewProperties()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotProvider_ClosedDatabaseIsAnError(t *testing.T) {
	db := setupSnapshotDB(t)
	p := NewSnapshotProvider(db, zerolog.Nop())
	require.NoError(t, db.Close())

	_, _, err := p.GetAvailability(context.Background(), curveRequirement(forward))
	assert.Error(t, err)
}
