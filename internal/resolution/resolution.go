// Package resolution decides how value requirements can be satisfied from market data and
// function applications, and classifies each outcome as resolved, unresolved, ambiguous or
// deeply ambiguous.
package resolution

import (
	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/value"
)

// Outcome classifies a resolution.
type Outcome string

const (
	OutcomeResolved        Outcome = "resolved"
	OutcomeUnresolved      Outcome = "unresolved"
	OutcomeAmbiguous       Outcome = "ambiguous"
	OutcomeDeeplyAmbiguous Outcome = "deeply_ambiguous"
)

// Candidate is one successful way of producing a requirement.
type Candidate struct {
	Specification value.ValueSpecification
	// Application is nil when the value comes straight from market data.
	Application *function.Application
	// Inputs holds one resolution per declared input, in declaration order.
	Inputs []*FullRequirementResolution

	deep bool
}

// IsMarketData reports whether the candidate is raw market data.
func (c Candidate) IsMarketData() bool {
	return c.Application == nil
}

// FunctionID returns the producing function, or value.MarketDataFunction.
func (c Candidate) FunctionID() string {
	return c.Specification.FunctionID
}

// CarriesAmbiguity reports whether any input, at any depth, has more than one resolution.
func (c Candidate) CarriesAmbiguity() bool {
	return c.deep
}

func newCandidate(spec value.ValueSpecification, app *function.Application, inputs []*FullRequirementResolution) Candidate {
	c := Candidate{Specification: spec, Application: app, Inputs: inputs}
	for _, in := range inputs {
		if in.IsAmbiguous() || in.IsDeeplyAmbiguous() {
			c.deep = true
			break
		}
	}
	return c
}

// FullRequirementResolution is the outcome for one requirement. It is immutable once returned
// and may be shared between requirements and goroutines through the cache.
type FullRequirementResolution struct {
	Requirement value.ValueRequirement
	Candidates  []Candidate
}

// IsResolved reports whether at least one valid resolution exists.
func (r *FullRequirementResolution) IsResolved() bool {
	return len(r.Candidates) > 0
}

// IsAmbiguous reports direct ambiguity: more than one candidate at this level.
func (r *FullRequirementResolution) IsAmbiguous() bool {
	return len(r.Candidates) > 1
}

// IsDeeplyAmbiguous reports a unique candidate whose inputs are ambiguous further down.
func (r *FullRequirementResolution) IsDeeplyAmbiguous() bool {
	return len(r.Candidates) == 1 && r.Candidates[0].deep
}

// Outcome returns the classification.
func (r *FullRequirementResolution) Outcome() Outcome {
	switch {
	case len(r.Candidates) == 0:
		return OutcomeUnresolved
	case len(r.Candidates) > 1:
		return OutcomeAmbiguous
	case r.Candidates[0].deep:
		return OutcomeDeeplyAmbiguous
	default:
		return OutcomeResolved
	}
}

// Specification returns the unique top-level specification. It is available for resolved and
// deeply ambiguous outcomes.
func (r *FullRequirementResolution) Specification() (value.ValueSpecification, bool) {
	if len(r.Candidates) != 1 {
		return value.ValueSpecification{}, false
	}
	return r.Candidates[0].Specification, true
}

// Node returns the unique dependency graph. It is only available when the outcome is
// OutcomeResolved.
func (r *FullRequirementResolution) Node() (*ResolutionNode, bool) {
	if r.Outcome() != OutcomeResolved {
		return nil, false
	}
	return buildNode(r.Candidates[0], make(map[string]*ResolutionNode)), true
}

// ResolutionNode is one node of a resolved dependency graph.
type ResolutionNode struct {
	Specification value.ValueSpecification
	Inputs        []*ResolutionNode
}

// FunctionID returns the producing function, or value.MarketDataFunction.
func (n *ResolutionNode) FunctionID() string {
	return n.Specification.FunctionID
}

// Size returns the number of distinct nodes reachable from n, n included.
func (n *ResolutionNode) Size() int {
	seen := make(map[*ResolutionNode]bool)
	var walk func(*ResolutionNode)
	walk = func(node *ResolutionNode) {
		if seen[node] {
			return
		}
		seen[node] = true
		for _, in := range node.Inputs {
			walk(in)
		}
	}
	walk(n)
	return len(seen)
}

func buildNode(c Candidate, seen map[string]*ResolutionNode) *ResolutionNode {
	key := c.Specification.Key()
	if n, ok := seen[key]; ok {
		return n
	}
	n := &ResolutionNode{Specification: c.Specification}
	seen[key] = n
	for _, in := range c.Inputs {
		n.Inputs = append(n.Inputs, buildNode(in.Candidates[0], seen))
	}
	return n
}
