package trace

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/depgraph/internal/resolution"
	"github.com/aristath/depgraph/internal/value"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Builder accumulates resolutions, failures and errors of a batch. Safe for concurrent use.
type Builder struct {
	mu    sync.Mutex
	graph *simple.DirectedGraph
	nodes map[string]*Node // specification key -> node
	byID  map[int64]*Node
	seen  map[*resolution.FullRequirementResolution]bool

	exceptions     []Exception
	exceptionIndex map[string]int

	failures     []Failure
	failureIndex map[string]int

	mapping     Mapping
	mappedIndex map[string]bool
	now         func() time.Time
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		graph:          simple.NewDirectedGraph(),
		nodes:          make(map[string]*Node),
		byID:           make(map[int64]*Node),
		seen:           make(map[*resolution.FullRequirementResolution]bool),
		exceptionIndex: make(map[string]int),
		failureIndex:   make(map[string]int),
		mappedIndex:    make(map[string]bool),
		now:            time.Now,
	}
}

// AddResolution adds a top-level resolution. Every candidate, ambiguous ones included, becomes
// part of the graph; the mapping only gets an entry when the top-level specification is unique.
func (b *Builder) AddResolution(r *resolution.FullRequirementResolution) {
	if r == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.addResolution(r)

	spec, ok := r.Specification()
	if !ok {
		return
	}
	reqKey := r.Requirement.Key()
	if b.mappedIndex[reqKey] {
		return
	}
	b.mappedIndex[reqKey] = true
	b.mapping.Requirements = append(b.mapping.Requirements, reqKey)
	b.mapping.Specifications = append(b.mapping.Specifications, spec.Key())
}

func (b *Builder) addResolution(r *resolution.FullRequirementResolution) {
	if b.seen[r] {
		return
	}
	b.seen[r] = true
	for _, c := range r.Candidates {
		from := b.node(c.Specification)
		for _, in := range c.Inputs {
			b.addResolution(in)
			for _, ic := range in.Candidates {
				to := b.node(ic.Specification)
				if from.ID != to.ID {
					b.graph.SetEdge(b.graph.NewEdge(simple.Node(from.ID), simple.Node(to.ID)))
				}
			}
		}
	}
}

func (b *Builder) node(spec value.ValueSpecification) *Node {
	key := spec.Key()
	if n, ok := b.nodes[key]; ok {
		return n
	}
	n := &Node{
		ID:         int64(len(b.nodes)),
		Key:        key,
		ValueName:  spec.ValueName,
		Target:     spec.Target.Key(),
		Function:   spec.FunctionID,
		MarketData: spec.IsMarketData(),
	}
	if !spec.Properties.IsEmpty() {
		n.Properties = spec.Properties.ToMap()
	}
	b.nodes[key] = n
	b.byID[n.ID] = n
	b.graph.AddNode(simple.Node(n.ID))
	return n
}

// AddFailures adds failure records. Records with the same identity accumulate their counts.
func (b *Builder) AddFailures(records []resolution.FailureRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range records {
		key := r.Failure.Key()
		if i, ok := b.failureIndex[key]; ok {
			b.failures[i].Count += r.Count
			continue
		}
		b.failureIndex[key] = len(b.failures)
		b.failures = append(b.failures, Failure{
			Kind:        string(r.Failure.Kind),
			Requirement: r.Failure.Requirement.Key(),
			Function:    r.Failure.FunctionID,
			Message:     r.Failure.Message,
			Count:       r.Count,
		})
	}
}

// AddError records an error. Errors of the same type and message collapse into one exception.
func (b *Builder) AddError(err error) {
	if err == nil {
		return
	}
	class := fmt.Sprintf("%T", err)
	message := err.Error()
	key := class + "\x00" + message

	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.exceptionIndex[key]; ok {
		b.exceptions[i].Repeat = b.exceptions[i].Count() + 1
		return
	}
	b.exceptionIndex[key] = len(b.exceptions)
	b.exceptions = append(b.exceptions, Exception{Class: class, Message: message})
}

// Build produces the trace. It fails only if the accumulated graph has a cycle.
func (b *Builder) Build() (*Trace, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sorted, err := topo.SortStabilized(b.graph, byID)
	if err != nil {
		return nil, fmt.Errorf("trace: dependency graph is not acyclic: %w", err)
	}

	t := &Trace{
		ID:         uuid.New().String(),
		CreatedAt:  b.now().UTC(),
		Exceptions: append([]Exception{}, b.exceptions...),
		Failures:   append([]Failure{}, b.failures...),
		Mapping: Mapping{
			Requirements:   append([]string{}, b.mapping.Requirements...),
			Specifications: append([]string{}, b.mapping.Specifications...),
		},
	}

	// Topological order puts consumers first; the trace lists inputs first.
	t.Graph.Nodes = make([]Node, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		t.Graph.Nodes = append(t.Graph.Nodes, *b.byID[sorted[i].ID()])
	}

	t.Graph.Edges = make([]Edge, 0, b.graph.Edges().Len())
	edges := b.graph.Edges()
	for edges.Next() {
		e := edges.Edge()
		t.Graph.Edges = append(t.Graph.Edges, Edge{From: e.From().ID(), To: e.To().ID()})
	}
	sort.Slice(t.Graph.Edges, func(i, j int) bool {
		if t.Graph.Edges[i].From != t.Graph.Edges[j].From {
			return t.Graph.Edges[i].From < t.Graph.Edges[j].From
		}
		return t.Graph.Edges[i].To < t.Graph.Edges[j].To
	})
	return t, nil
}

func byID(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}
