package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/marketdata"
	testutil "github.com/aristath/depgraph/internal/testing"
	"github.com/aristath/depgraph/internal/value"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd   = value.NewTarget(value.TargetCurrency, "USD")
	trade = value.NewTarget(value.TargetTrade, "X")
	prim  = value.NewTarget(value.TargetPrimitive, "p")
)

func newCatalog(t *testing.T, defs ...function.Definition) *function.StaticCatalog {
	t.Helper()
	catalog, err := function.NewStaticCatalog(defs...)
	require.NoError(t, err)
	return catalog
}

func pvFrom(id, curve string) function.Definition {
	return function.Definition{
		ID:         id,
		TargetType: value.TargetTrade,
		Output:     function.OutputDeclaration{ValueName: "PRESENT_VALUE"},
		Inputs: []function.InputDeclaration{{
			ValueName:  "YIELD_CURVE",
			Target:     "CURRENCY~USD",
			Properties: value.NewProperties().With("Curve", curve),
		}},
	}
}

func link(id, output string, inputs ...string) function.Definition {
	def := function.Definition{ID: id, Output: function.OutputDeclaration{ValueName: output}}
	for _, in := range inputs {
		def.Inputs = append(def.Inputs, function.InputDeclaration{ValueName: in})
	}
	return def
}

func curves() *marketdata.StaticProvider {
	return marketdata.NewStaticProvider().
		MustAdd("YIELD_CURVE", usd, value.NewProperties().With("Curve", "Forward")).
		MustAdd("YIELD_CURVE", usd, value.NewProperties().With("Curve", "Discount"))
}

func pvRequirement() value.ValueRequirement {
	return value.NewRequirement("PRESENT_VALUE", trade, value.NewProperties())
}

func kinds(sink *FailureSink) []FailureKind {
	var out []FailureKind
	for _, r := range sink.Records() {
		out = append(out, r.Failure.Kind)
	}
	return out
}

func TestResolve_MarketDataOnly(t *testing.T) {
	checker := NewChecker(curves(), newCatalog(t), nil)
	req := value.NewRequirement("YIELD_CURVE", usd, value.NewProperties().With("Curve", "Forward"))

	r, err := checker.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, r.Outcome())

	node, ok := r.Node()
	require.True(t, ok)
	assert.Equal(t, 1, node.Size())
	assert.Empty(t, node.Inputs)
	assert.Equal(t, value.MarketDataFunction, node.FunctionID())
	assert.True(t, r.Candidates[0].IsMarketData())
	assert.True(t, node.Specification.Satisfies(req))
}

func TestResolve_PresentValueFromCurve(t *testing.T) {
	checker := NewChecker(curves(), newCatalog(t, pvFrom("pv-forward", "Forward")), nil)

	r, err := checker.Resolve(context.Background(), pvRequirement())
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, r.Outcome())
	assert.False(t, r.IsAmbiguous())
	assert.False(t, r.IsDeeplyAmbiguous())

	node, ok := r.Node()
	require.True(t, ok)
	assert.Equal(t, 2, node.Size())
	assert.Equal(t, "pv-forward", node.FunctionID())
	require.Len(t, node.Inputs, 1)
	assert.Equal(t, "YIELD_CURVE", node.Inputs[0].Specification.ValueName)
	assert.Equal(t, value.MarketDataFunction, node.Inputs[0].FunctionID())

	spec, ok := r.Specification()
	require.True(t, ok)
	assert.Equal(t, "pv-forward", spec.FunctionID)
}

func TestResolve_DirectAmbiguity(t *testing.T) {
	checker := NewChecker(curves(), newCatalog(t, pvFrom("pv-forward", "Forward"), pvFrom("pv-discount", "Discount")), nil)

	r, err := checker.Resolve(context.Background(), pvRequirement())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, r.Outcome())
	assert.True(t, r.IsResolved())
	assert.True(t, r.IsAmbiguous())
	assert.False(t, r.IsDeeplyAmbiguous())
	require.Len(t, r.Candidates, 2)
	assert.Equal(t, "pv-forward", r.Candidates[0].FunctionID())
	assert.Equal(t, "pv-discount", r.Candidates[1].FunctionID())

	_, ok := r.Specification()
	assert.False(t, ok)
	_, ok = r.Node()
	assert.False(t, ok)
}

func TestResolve_MarketDataAndFunctionAreAlternatives(t *testing.T) {
	oracle := curves().MustAdd("PRESENT_VALUE", trade, value.NewProperties())
	checker := NewChecker(oracle, newCatalog(t, pvFrom("pv-forward", "Forward")), nil)

	r, err := checker.Resolve(context.Background(), pvRequirement())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, r.Outcome())
	require.Len(t, r.Candidates, 2)
	assert.True(t, r.Candidates[0].IsMarketData())
	assert.False(t, r.Candidates[1].IsMarketData())
}

func TestResolve_DeepAmbiguity(t *testing.T) {
	positionPV := function.Definition{
		ID:         "position-pv",
		TargetType: value.TargetPosition,
		Output:     function.OutputDeclaration{ValueName: "PRESENT_VALUE"},
		Inputs:     []function.InputDeclaration{{ValueName: "PRESENT_VALUE", Target: "TRADE~X"}},
	}
	catalog := newCatalog(t, pvFrom("pv-forward", "Forward"), pvFrom("pv-discount", "Discount"), positionPV)
	checker := NewChecker(curves(), catalog, nil)

	position := value.NewTarget(value.TargetPortfolioNode, "root").Containing(value.TargetPosition, "P1")
	r, err := checker.Resolve(context.Background(), value.NewRequirement("PRESENT_VALUE", position, value.NewProperties()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeeplyAmbiguous, r.Outcome())
	assert.False(t, r.IsAmbiguous())
	assert.True(t, r.IsDeeplyAmbiguous())
	assert.True(t, r.Candidates[0].CarriesAmbiguity())

	spec, ok := r.Specification()
	require.True(t, ok)
	assert.Equal(t, "position-pv", spec.FunctionID)
	_, ok = r.Node()
	assert.False(t, ok)
}

func TestResolve_SelfDependency(t *testing.T) {
	tests := []struct {
		name string
		defs []function.Definition
	}{
		{name: "direct", defs: []function.Definition{link("loop", "X", "X")}},
		{name: "transitive", defs: []function.Definition{link("x-from-y", "X", "Y"), link("y-from-x", "Y", "X")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(nil, newCatalog(t, tt.defs...), nil, WithGreedyCaching(true))

			r, err := checker.Resolve(context.Background(), value.NewRequirement("X", prim, value.NewProperties()))
			require.NoError(t, err)
			assert.Equal(t, OutcomeUnresolved, r.Outcome())
			assert.Contains(t, kinds(checker.Failures()), FailureRecursion)
			assert.Contains(t, kinds(checker.Failures()), FailureUnsatisfiedInputs)
		})
	}
}

func TestResolve_SelfDependencyWithMarketData(t *testing.T) {
	oracle := marketdata.NewStaticProvider().MustAdd("X", prim, value.NewProperties())
	checker := NewChecker(oracle, newCatalog(t, link("loop", "X", "X")), nil)

	r, err := checker.Resolve(context.Background(), value.NewRequirement("X", prim, value.NewProperties()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, r.Outcome())
	assert.True(t, r.Candidates[0].IsMarketData())
}

func TestResolve_PathDependentResultsAreNotCached(t *testing.T) {
	// A is market data and can also be computed from B; B can only be computed from A.
	// Resolving A first sees B as unresolved because A is on the path. That must not leak into
	// the later top-level resolution of B.
	oracle := marketdata.NewStaticProvider().MustAdd("A", prim, value.NewProperties())
	catalog := newCatalog(t, link("a-from-b", "A", "B"), link("b-from-a", "B", "A"))
	checker := NewChecker(oracle, catalog, nil, WithGreedyCaching(true), WithSharedCache(NewCache()))

	a, err := checker.Resolve(context.Background(), value.NewRequirement("A", prim, value.NewProperties()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, a.Outcome())

	b, err := checker.Resolve(context.Background(), value.NewRequirement("B", prim, value.NewProperties()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, b.Outcome())
	spec, _ := b.Specification()
	assert.Equal(t, "b-from-a", spec.FunctionID)
}

func TestResolve_SharedCachingIsIdempotent(t *testing.T) {
	run := func(opts ...Option) (*FullRequirementResolution, *FullRequirementResolution, int64) {
		catalog := testutil.NewMockCatalog(newCatalog(t, pvFrom("pv-forward", "Forward")))
		checker := NewChecker(curves(), catalog, nil, opts...)
		first, err := checker.Resolve(context.Background(), pvRequirement())
		require.NoError(t, err)
		second, err := checker.Resolve(context.Background(), pvRequirement())
		require.NoError(t, err)
		return first, second, catalog.Calls()
	}

	first, second, cachedCalls := run(WithSharedCache(NewCache()))
	assert.Same(t, first, second)

	plainFirst, plainSecond, plainCalls := run()
	assert.NotSame(t, plainFirst, plainSecond)
	assert.Equal(t, plainFirst.Outcome(), plainSecond.Outcome())

	assert.Less(t, cachedCalls, plainCalls)
}

func TestResolve_SharedCacheKeepsLookalikeConstraintsApart(t *testing.T) {
	oracle := marketdata.NewStaticProvider().MustAdd("YIELD_CURVE", usd, value.NewProperties().With("Curve", "x"))
	cache := NewCache()
	checker := NewChecker(oracle, newCatalog(t), nil, WithSharedCache(cache))

	either := value.NewRequirement("YIELD_CURVE", usd, value.NewProperties().With("Curve", "x", "y"))
	r, err := checker.Resolve(context.Background(), either)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, r.Outcome())

	literal := value.NewRequirement("YIELD_CURVE", usd, value.NewProperties().With("Curve", "x,y"))
	r, err = checker.Resolve(context.Background(), literal)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, r.Outcome())
	assert.Equal(t, 2, cache.Len())
}

func TestResolve_GreedyCachingSharesSubRequirements(t *testing.T) {
	oracle := marketdata.NewStaticProvider().MustAdd("D", prim, value.NewProperties())
	defs := []function.Definition{link("a", "A", "B", "C"), link("b", "B", "D"), link("c", "C", "D")}
	req := value.NewRequirement("A", prim, value.NewProperties())

	tests := []struct {
		name      string
		opts      []Option
		wantCalls int64
	}{
		{name: "no caching", wantCalls: 5},
		{name: "greedy", opts: []Option{WithGreedyCaching(true)}, wantCalls: 4},
		{name: "greedy shared", opts: []Option{WithGreedyCaching(true), WithSharedCache(NewCache())}, wantCalls: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := testutil.NewMockCatalog(newCatalog(t, defs...))
			checker := NewChecker(oracle, catalog, nil, tt.opts...)

			r, err := checker.Resolve(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, OutcomeResolved, r.Outcome())
			assert.Equal(t, tt.wantCalls, catalog.Calls())

			node, ok := r.Node()
			require.True(t, ok)
			assert.Equal(t, 4, node.Size(), "D is shared by B and C")
		})
	}
}

func TestResolve_ExclusionGroups(t *testing.T) {
	oracle := marketdata.NewStaticProvider().MustAdd("C", prim, value.NewProperties())
	aGrouped := link("a-grouped", "A", "B")
	aGrouped.ExclusionGroup = "g"
	bGrouped := link("b-grouped", "B", "C")
	bGrouped.ExclusionGroup = "g"

	t.Run("conflict leaves requirement unresolved", func(t *testing.T) {
		catalog := newCatalog(t, aGrouped, bGrouped)
		checker := NewChecker(oracle, catalog, catalog)

		r, err := checker.Resolve(context.Background(), value.NewRequirement("A", prim, value.NewProperties()))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnresolved, r.Outcome())
		assert.Contains(t, kinds(checker.Failures()), FailureExclusionConflict)
	})

	t.Run("exclusion context is part of the cache key", func(t *testing.T) {
		catalog := newCatalog(t, aGrouped, bGrouped, link("b-plain", "B", "C"))
		checker := NewChecker(oracle, catalog, catalog, WithGreedyCaching(true), WithSharedCache(NewCache()))

		a, err := checker.Resolve(context.Background(), value.NewRequirement("A", prim, value.NewProperties()))
		require.NoError(t, err)
		assert.Equal(t, OutcomeResolved, a.Outcome())
		node, _ := a.Node()
		assert.Equal(t, 3, node.Size())
		assert.Equal(t, "b-plain", node.Inputs[0].FunctionID())

		b, err := checker.Resolve(context.Background(), value.NewRequirement("B", prim, value.NewProperties()))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAmbiguous, b.Outcome())
	})
}

func TestResolve_MissingInputsAreRecorded(t *testing.T) {
	checker := NewChecker(curves(), newCatalog(t, pvFrom("pv-spot", "Spot")), nil)

	r, err := checker.Resolve(context.Background(), pvRequirement())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, r.Outcome())
	assert.Equal(t, []FailureKind{FailureMissingMarketData, FailureUnsatisfiedInputs}, kinds(checker.Failures()))

	top := NewChecker(nil, newCatalog(t), nil)
	r, err = top.Resolve(context.Background(), pvRequirement())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, r.Outcome())
	assert.Equal(t, []FailureKind{FailureNoMatchingFunction}, kinds(top.Failures()))
}

func TestResolve_InfrastructureFaults(t *testing.T) {
	feedDown := errors.New("feed down")
	badDef := pvFrom("bad", "Forward")

	tests := []struct {
		name    string
		oracle  marketdata.AvailabilityProvider
		catalog function.Catalog
		req     value.ValueRequirement
		wantIs  error
	}{
		{
			name: "oracle error",
			oracle: marketdata.ProviderFunc(func(context.Context, value.ValueRequirement) (value.ValueSpecification, bool, error) {
				return value.ValueSpecification{}, false, feedDown
			}),
			catalog: newCatalog(t),
			req:     pvRequirement(),
			wantIs:  feedDown,
		},
		{
			name: "catalog error",
			catalog: function.CatalogFunc(func(context.Context, value.ValueRequirement) ([]function.Application, error) {
				return nil, feedDown
			}),
			req:    pvRequirement(),
			wantIs: feedDown,
		},
		{
			name: "malformed candidate",
			catalog: function.CatalogFunc(func(context.Context, value.ValueRequirement) ([]function.Application, error) {
				return []function.Application{{
					Function: &badDef,
					Output:   value.NewSpecification("DELTA", trade, value.NewProperties(), "bad"),
				}}, nil
			}),
			req: pvRequirement(),
		},
		{
			name:    "invalid requirement",
			catalog: newCatalog(t),
			req:     value.NewRequirement("", trade, value.NewProperties()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(tt.oracle, tt.catalog, nil)

			r, err := checker.Resolve(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, r)

			var fault *FaultError
			require.True(t, errors.As(err, &fault))
			assert.Equal(t, FailureInfrastructure, fault.Failure.Kind)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Contains(t, kinds(checker.Failures()), FailureInfrastructure)
		})
	}
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker := NewChecker(curves(), newCatalog(t, pvFrom("pv-forward", "Forward")), nil)

	_, err := checker.Resolve(ctx, pvRequirement())
	assert.ErrorIs(t, err, context.Canceled)
	var fault *FaultError
	assert.False(t, errors.As(err, &fault))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, l := range m.GetLabel() {
				if l.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestResolve_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	checker := NewChecker(curves(), newCatalog(t, pvFrom("pv-forward", "Forward")), nil,
		WithMetrics(metrics), WithSharedCache(NewCache()))
	for i := 0; i < 2; i++ {
		_, err := checker.Resolve(context.Background(), pvRequirement())
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, counterValue(t, reg, "depgraph_resolution_outcomes_total", "resolved"))
	assert.Equal(t, 2.0, counterValue(t, reg, "depgraph_resolution_catalog_queries_total", ""))
	assert.Equal(t, 2.0, counterValue(t, reg, "depgraph_resolution_market_data_queries_total", ""))
	assert.Equal(t, 1.0, counterValue(t, reg, "depgraph_resolution_cache_lookups_total", "hit"))
	assert.Equal(t, 1.0, counterValue(t, reg, "depgraph_resolution_cache_lookups_total", "miss"))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}
