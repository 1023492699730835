package ambiguity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/depgraph/internal/portfolio"
	"github.com/aristath/depgraph/internal/resolution"
	"github.com/aristath/depgraph/internal/trace"
	"github.com/aristath/depgraph/internal/value"
	"github.com/aristath/depgraph/internal/work"
	"github.com/rs/zerolog"
)

// Summary counts the outcomes of a batch.
type Summary struct {
	Submitted       int64 `json:"submitted"`
	Resolved        int64 `json:"resolved"`
	Unresolved      int64 `json:"unresolved"`
	Ambiguous       int64 `json:"ambiguous"`
	DeeplyAmbiguous int64 `json:"deeply_ambiguous"`
	Faults          int64 `json:"faults"`
}

// Problems returns the number of requirements that did not resolve uniquely.
func (s Summary) Problems() int64 {
	return s.Unresolved + s.Ambiguous + s.DeeplyAmbiguous + s.Faults
}

// Report is the result of one batch.
type Report struct {
	Name    string
	Summary Summary
	Trace   *trace.Trace
	Elapsed time.Duration
}

// Runner checks a batch of requirements on a shared pool. One runner covers one batch; create
// a new one per calculation configuration.
type Runner struct {
	name    string
	checker *resolution.Checker
	service *work.Service[*resolution.FullRequirementResolution]
	builder *trace.Builder
	log     zerolog.Logger
	ctx     context.Context
	onDone  func(*resolution.FullRequirementResolution)
	started time.Time

	resolved   atomic.Int64
	unresolved atomic.Int64
	ambiguous  atomic.Int64
	deep       atomic.Int64
	faults     atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithName names the batch in logs and progress events.
func WithName(name string) Option {
	return func(r *Runner) {
		r.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithContext sets the context resolutions run with.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		r.ctx = ctx
	}
}

// WithResultHook registers a function called with every successful resolution after it has been
// classified.
func WithResultHook(fn func(*resolution.FullRequirementResolution)) Option {
	return func(r *Runner) {
		r.onDone = fn
	}
}

// New creates a runner that resolves with checker on pool.
func New(checker *resolution.Checker, pool *work.Pool, opts ...Option) *Runner {
	r := &Runner{
		name:    "ambiguity",
		checker: checker,
		builder: trace.NewBuilder(),
		log:     zerolog.Nop(),
		ctx:     context.Background(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "ambiguity_runner").Str("batch", r.name).Logger()

	r.service = work.NewServiceWithContext[*resolution.FullRequirementResolution](r.ctx, pool, r)
	r.service.SetLogger(r.log)
	r.service.SetProgressReporter(work.NewProgressReporter(work.NewLogEmitter(r.log), r.name))
	return r
}

// Submit schedules the resolution of one requirement. The outcome is delivered asynchronously
// and collected by JoinAll. Requirements submitted after JoinAll was called are rejected.
func (r *Runner) Submit(requirement value.ValueRequirement) bool {
	return r.service.Execute(work.NewTask(requirement.Key(), func(ctx context.Context) (*resolution.FullRequirementResolution, error) {
		return r.checker.Resolve(ctx, requirement)
	}))
}

// CheckPortfolio submits the requirements of set for every trade, position and node of pf.
// Nodes are visited children first; each node is checked for every template requested below it.
// It returns the number of submitted requirements.
func (r *Runner) CheckPortfolio(pf *portfolio.Portfolio, set *RequirementSet) int {
	if pf == nil || pf.Root == nil {
		return 0
	}
	r.log.Info().
		Str("portfolio", pf.ID).
		Str("configuration", set.Name).
		Int("templates", set.Len()).
		Msg("Checking portfolio")
	submitted := 0
	r.checkNode(pf.Root, set, &submitted)
	return submitted
}

func (r *Runner) checkNode(node *portfolio.Node, set *RequirementSet, submitted *int) []Template {
	var aggregate []Template
	seen := make(map[string]bool)
	collect := func(templates []Template) {
		for _, t := range templates {
			if !seen[t.Key()] {
				seen[t.Key()] = true
				aggregate = append(aggregate, t)
			}
		}
	}
	submit := func(req value.ValueRequirement) {
		if r.Submit(req) {
			*submitted++
		}
	}

	for _, child := range node.Children {
		if child != nil {
			collect(r.checkNode(child, set, submitted))
		}
	}
	for _, pos := range node.Positions {
		templates := set.For(pos.SecurityType)
		if len(templates) == 0 {
			continue
		}
		for _, tr := range pos.Trades {
			for _, t := range templates {
				submit(t.Requirement(portfolio.TradeTarget(tr)))
			}
		}
		for _, t := range templates {
			submit(t.Requirement(portfolio.PositionTarget(node, pos)))
		}
		collect(templates)
	}
	for _, t := range aggregate {
		submit(t.Requirement(portfolio.NodeTarget(node)))
	}
	return aggregate
}

// Cancel stops dispatching requirements that have not started.
func (r *Runner) Cancel() {
	r.service.Cancel()
}

// JoinAll waits for every submitted requirement to report and builds the report.
func (r *Runner) JoinAll(ctx context.Context) (*Report, error) {
	if err := r.service.Join(ctx); err != nil {
		return nil, fmt.Errorf("ambiguity: batch %s: %w", r.name, err)
	}
	r.builder.AddFailures(r.checker.Failures().Records())
	t, err := r.builder.Build()
	if err != nil {
		return nil, fmt.Errorf("ambiguity: batch %s: %w", r.name, err)
	}

	report := &Report{
		Name:    r.name,
		Summary: r.Summary(),
		Trace:   t,
		Elapsed: time.Since(r.started),
	}
	r.log.Info().
		Int64("submitted", report.Summary.Submitted).
		Int64("resolved", report.Summary.Resolved).
		Int64("unresolved", report.Summary.Unresolved).
		Int64("ambiguous", report.Summary.Ambiguous).
		Int64("deeply_ambiguous", report.Summary.DeeplyAmbiguous).
		Int64("faults", report.Summary.Faults).
		Dur("elapsed", report.Elapsed).
		Msg("Ambiguity check completed")
	return report, nil
}

// Summary returns the counts so far.
func (r *Runner) Summary() Summary {
	return Summary{
		Submitted:       r.service.Submitted(),
		Resolved:        r.resolved.Load(),
		Unresolved:      r.unresolved.Load(),
		Ambiguous:       r.ambiguous.Load(),
		DeeplyAmbiguous: r.deep.Load(),
		Faults:          r.faults.Load(),
	}
}

// OnSuccess implements work.CompletionListener.
func (r *Runner) OnSuccess(res *resolution.FullRequirementResolution) {
	if res == nil {
		r.OnFailure(fmt.Errorf("ambiguity: resolution returned no result"))
		return
	}
	r.classify(res)
	r.builder.AddResolution(res)
	if r.onDone != nil {
		r.onDone(res)
	}
}

// OnFailure implements work.CompletionListener.
func (r *Runner) OnFailure(err error) {
	r.faults.Add(1)
	r.builder.AddError(err)
	r.log.Error().Err(err).Msg("Internal failure")
}

func (r *Runner) classify(res *resolution.FullRequirementResolution) {
	switch res.Outcome() {
	case resolution.OutcomeAmbiguous:
		r.ambiguous.Add(1)
		r.log.Warn().
			Str("requirement", res.Requirement.String()).
			Strs("candidates", candidateFunctions(res)).
			Msg("Got ambiguity")
	case resolution.OutcomeDeeplyAmbiguous:
		r.deep.Add(1)
		r.log.Warn().
			Str("requirement", res.Requirement.String()).
			Strs("candidates", candidateFunctions(res)).
			Msg("Got deep ambiguity")
	case resolution.OutcomeUnresolved:
		r.unresolved.Add(1)
		r.log.Debug().Str("requirement", res.Requirement.String()).Msg("Couldn't resolve")
	default:
		r.resolved.Add(1)
		if node, ok := res.Node(); ok {
			r.log.Debug().
				Str("requirement", res.Requirement.String()).
				Str("function", node.FunctionID()).
				Int("nodes", node.Size()).
				Msg("Resolved")
		}
	}
}

func candidateFunctions(res *resolution.FullRequirementResolution) []string {
	ids := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		ids = append(ids, c.FunctionID())
	}
	return ids
}
