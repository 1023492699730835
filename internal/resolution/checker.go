package resolution

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/marketdata"
	"github.com/aristath/depgraph/internal/value"
	"github.com/rs/zerolog"
)

// noGuard is the low-link of a subtree that did not run into any in-progress requirement.
const noGuard = math.MaxInt

// Checker resolves requirements against market data and a function catalog.
//
// A Checker is safe for concurrent use. Each Resolve call runs depth first on the caller's
// goroutine; the only state shared between calls is the optional shared cache, the failure
// sink and the metrics.
type Checker struct {
	oracle  marketdata.AvailabilityProvider
	catalog function.Catalog
	groups  function.ExclusionGroups

	greedy   bool
	shared   *Cache
	failures *FailureSink
	metrics  *Metrics
	log      zerolog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithGreedyCaching memoizes every sub-requirement resolved within a check, not only the
// top-level one.
func WithGreedyCaching(enabled bool) Option {
	return func(c *Checker) { c.greedy = enabled }
}

// WithSharedCache memoizes across checks in the given batch-scoped cache. A nil cache disables
// shared caching.
func WithSharedCache(cache *Cache) Option {
	return func(c *Checker) { c.shared = cache }
}

// WithFailureSink records failures in sink instead of a checker-private one.
func WithFailureSink(sink *FailureSink) Option {
	return func(c *Checker) {
		if sink != nil {
			c.failures = sink
		}
	}
}

// WithMetrics counts outcomes, failures and queries.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Checker) { c.log = log.With().Str("component", "resolution_checker").Logger() }
}

// NewChecker creates a checker. A nil groups means no exclusion groups.
func NewChecker(oracle marketdata.AvailabilityProvider, catalog function.Catalog, groups function.ExclusionGroups, opts ...Option) *Checker {
	if oracle == nil {
		oracle = marketdata.None
	}
	if groups == nil {
		groups = function.NoExclusions
	}
	c := &Checker{
		oracle:   oracle,
		catalog:  catalog,
		groups:   groups,
		failures: NewFailureSink(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Failures returns the sink failures are recorded in.
func (c *Checker) Failures() *FailureSink {
	return c.failures
}

// SharedCache returns the shared cache, nil when shared caching is off.
func (c *Checker) SharedCache() *Cache {
	return c.shared
}

// Resolve resolves one top-level requirement.
//
// Unresolved and ambiguous outcomes are values. The error is ctx.Err() when ctx is done, or a
// *FaultError for infrastructure faults.
func (c *Checker) Resolve(ctx context.Context, requirement value.ValueRequirement) (*FullRequirementResolution, error) {
	if err := requirement.Validate(); err != nil {
		return nil, c.fault(Failure{Kind: FailureInfrastructure, Requirement: requirement}, err)
	}
	s := &session{
		checker:    c,
		ctx:        ctx,
		inProgress: make(map[string]int),
	}
	if c.greedy && c.shared == nil {
		s.local = make(map[string]*FullRequirementResolution)
	}
	r, _, err := s.resolve(requirement, function.ExclusionContext{}, 0)
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("requirement", requirement.String()).
		Str("outcome", string(r.Outcome())).
		Int("candidates", len(r.Candidates)).
		Msg("Requirement resolved")
	return r, nil
}

func (c *Checker) fail(f Failure) {
	c.failures.Record(f)
	c.metrics.failure(f.Kind)
}

func (c *Checker) fault(f Failure, err error) *FaultError {
	f.Kind = FailureInfrastructure
	f.Message = err.Error()
	c.fail(f)
	c.log.Warn().Err(err).
		Str("requirement", f.Requirement.String()).
		Str("function", f.FunctionID).
		Msg("Infrastructure fault during resolution")
	return &FaultError{Failure: f, Err: err}
}

// session is the state of one top-level check.
type session struct {
	checker *Checker
	ctx     context.Context
	// local is the check-scoped memo used by greedy caching without a shared cache.
	local map[string]*FullRequirementResolution
	// inProgress maps requirement keys on the current path to their depth.
	inProgress map[string]int
}

// memoizes reports whether a resolution at depth is cached under the current policy.
func (s *session) memoizes(depth int) bool {
	if depth == 0 {
		return s.checker.shared != nil || s.local != nil
	}
	return s.checker.greedy
}

func (s *session) lookup(key string, depth int) (*FullRequirementResolution, bool) {
	if !s.memoizes(depth) {
		return nil, false
	}
	var (
		r  *FullRequirementResolution
		ok bool
	)
	if s.checker.shared != nil {
		r, ok = s.checker.shared.Get(key)
	} else {
		r, ok = s.local[key]
	}
	s.checker.metrics.cacheLookup(ok)
	return r, ok
}

func (s *session) store(key string, depth int, r *FullRequirementResolution) *FullRequirementResolution {
	if !s.memoizes(depth) {
		return r
	}
	if s.checker.shared != nil {
		published, _ := s.checker.shared.LoadOrStore(key, r)
		return published
	}
	s.local[key] = r
	return r
}

// resolve returns the resolution and the lowest depth of any in-progress requirement the subtree
// ran into. A subtree that hit a requirement above depth is path dependent and is not memoized.
func (s *session) resolve(requirement value.ValueRequirement, exclusions function.ExclusionContext, depth int) (*FullRequirementResolution, int, error) {
	c := s.checker
	reqKey := requirement.Key()
	if guard, ok := s.inProgress[reqKey]; ok {
		c.fail(Failure{
			Kind:        FailureRecursion,
			Requirement: requirement,
			Message:     "requirement depends on itself",
		})
		c.log.Debug().Str("requirement", reqKey).Msg("Recursive requirement short-circuited")
		return &FullRequirementResolution{Requirement: requirement}, guard, nil
	}

	cacheKey := CacheKey(requirement, exclusions)
	if r, ok := s.lookup(cacheKey, depth); ok {
		return r, noGuard, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.inProgress[reqKey] = depth
	defer delete(s.inProgress, reqKey)

	low := noGuard
	var candidates []Candidate

	c.metrics.oracleQuery()
	spec, available, err := c.oracle.GetAvailability(s.ctx, requirement)
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, c.fault(Failure{Requirement: requirement}, fmt.Errorf("market data: %w", err))
	}
	if available {
		if spec.FunctionID == "" {
			spec.FunctionID = value.MarketDataFunction
		}
		if !spec.Satisfies(requirement) {
			return nil, 0, c.fault(Failure{Requirement: requirement, FunctionID: spec.FunctionID},
				fmt.Errorf("market data specification %s does not satisfy the requirement", spec))
		}
		candidates = append(candidates, newCandidate(spec, nil, nil))
	}

	c.metrics.catalogQuery()
	apps, err := c.catalog.CandidatesFor(s.ctx, requirement)
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, c.fault(Failure{Requirement: requirement}, fmt.Errorf("function catalog: %w", err))
	}

	if !available && len(apps) == 0 {
		kind := FailureNoMatchingFunction
		if depth > 0 {
			kind = FailureMissingMarketData
		}
		c.fail(Failure{Kind: kind, Requirement: requirement, Message: "no market data and no function can produce the value"})
	}

	for i := range apps {
		app := apps[i]
		fnID := app.FunctionID()
		group, grouped := c.groups.GroupOf(fnID)
		if grouped && exclusions.Contains(group) {
			c.fail(Failure{
				Kind:        FailureExclusionConflict,
				Requirement: requirement,
				FunctionID:  fnID,
				Message:     fmt.Sprintf("exclusion group %q already used on this path", group),
			})
			continue
		}
		if !app.Output.Satisfies(requirement) || app.Output.FunctionID != fnID {
			return nil, 0, c.fault(Failure{Requirement: requirement, FunctionID: fnID},
				fmt.Errorf("candidate output %s does not satisfy the requirement", app.Output))
		}

		inner := exclusions
		if grouped {
			inner = exclusions.With(group)
		}
		inputs := make([]*FullRequirementResolution, 0, len(app.Inputs))
		satisfied := true
		for _, input := range app.Inputs {
			r, inputLow, err := s.resolve(input, inner, depth+1)
			if err != nil {
				return nil, 0, err
			}
			if inputLow < low {
				low = inputLow
			}
			if !r.IsResolved() {
				c.fail(Failure{
					Kind:        FailureUnsatisfiedInputs,
					Requirement: requirement,
					FunctionID:  fnID,
					Message:     fmt.Sprintf("input %s is unresolved", input),
				})
				satisfied = false
				break
			}
			inputs = append(inputs, r)
		}
		if satisfied {
			candidates = append(candidates, newCandidate(app.Output, &app, inputs))
		}
	}

	r := &FullRequirementResolution{Requirement: requirement, Candidates: candidates}
	c.metrics.outcome(r.Outcome())
	if low >= depth {
		r = s.store(cacheKey, depth, r)
	}
	return r, low, nil
}
