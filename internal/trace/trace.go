// Package trace renders a batch of resolutions into the serializable diagnostic report: the
// union dependency graph, deduplicated exceptions, itemized failures and the mapping from
// requirements to the specifications they resolved to.
package trace

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMappingLengthMismatch is returned when the mapping arrays differ in length.
	ErrMappingLengthMismatch = errors.New("trace: mapping requirements and specifications differ in length")
	// ErrUnknownNode is returned when an edge refers to a node that is not in the graph.
	ErrUnknownNode = errors.New("trace: edge refers to unknown node")
)

// Node is one value specification in the graph.
type Node struct {
	ID         int64               `json:"id" msgpack:"id"`
	Key        string              `json:"key" msgpack:"key"`
	ValueName  string              `json:"value_name" msgpack:"value_name"`
	Target     string              `json:"target" msgpack:"target"`
	Properties map[string][]string `json:"properties,omitempty" msgpack:"properties,omitempty"`
	// Function is the producing function id, or "MarketData".
	Function   string `json:"function" msgpack:"function"`
	MarketData bool   `json:"market_data,omitempty" msgpack:"market_data,omitempty"`
}

// Edge points from a consumer to one of its inputs.
type Edge struct {
	From int64 `json:"from" msgpack:"from"`
	To   int64 `json:"to" msgpack:"to"`
}

// Graph is the union dependency graph. Nodes are in dependency order: inputs before consumers.
type Graph struct {
	Nodes []Node `json:"nodes" msgpack:"nodes"`
	Edges []Edge `json:"edges" msgpack:"edges"`
}

// Exception is a distinct error seen during the batch.
type Exception struct {
	Class   string `json:"class" msgpack:"class"`
	Message string `json:"message" msgpack:"message"`
	// Repeat is set only when the exception was seen more than once.
	Repeat int `json:"repeat,omitempty" msgpack:"repeat,omitempty"`
}

// Count returns how many times the exception was seen.
func (e Exception) Count() int {
	if e.Repeat > 1 {
		return e.Repeat
	}
	return 1
}

// Failure is a serialized resolution failure.
type Failure struct {
	Kind        string `json:"kind" msgpack:"kind"`
	Requirement string `json:"requirement" msgpack:"requirement"`
	Function    string `json:"function,omitempty" msgpack:"function,omitempty"`
	Message     string `json:"message" msgpack:"message"`
	Count       int    `json:"count" msgpack:"count"`
}

// Mapping pairs requirement keys with the keys of the specifications they resolved to.
type Mapping struct {
	Requirements   []string `json:"requirements" msgpack:"requirements"`
	Specifications []string `json:"specifications" msgpack:"specifications"`
}

// Len returns the number of pairs.
func (m Mapping) Len() int {
	return len(m.Requirements)
}

// Lookup returns the specification key of a requirement key.
func (m Mapping) Lookup(requirement string) (string, bool) {
	for i, r := range m.Requirements {
		if r == requirement && i < len(m.Specifications) {
			return m.Specifications[i], true
		}
	}
	return "", false
}

// Trace is the report of one batch.
type Trace struct {
	ID         string      `json:"id" msgpack:"id"`
	CreatedAt  time.Time   `json:"created_at" msgpack:"created_at"`
	Graph      Graph       `json:"graph" msgpack:"graph"`
	Exceptions []Exception `json:"exceptions" msgpack:"exceptions"`
	Failures   []Failure   `json:"failures" msgpack:"failures"`
	Mapping    Mapping     `json:"mapping" msgpack:"mapping"`
}

// Validate checks the structural rules a decoded trace must follow.
func (t *Trace) Validate() error {
	if len(t.Mapping.Requirements) != len(t.Mapping.Specifications) {
		return fmt.Errorf("%w: %d requirements, %d specifications",
			ErrMappingLengthMismatch, len(t.Mapping.Requirements), len(t.Mapping.Specifications))
	}
	ids := make(map[int64]bool, len(t.Graph.Nodes))
	for _, n := range t.Graph.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("trace: duplicate node id %d", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range t.Graph.Edges {
		if !ids[e.From] {
			return fmt.Errorf("%w: %d", ErrUnknownNode, e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("%w: %d", ErrUnknownNode, e.To)
		}
	}
	return nil
}

// NodeByKey returns the node for a specification key.
func (t *Trace) NodeByKey(key string) (Node, bool) {
	for _, n := range t.Graph.Nodes {
		if n.Key == key {
			return n, true
		}
	}
	return Node{}, false
}

// Inputs returns the ids of the inputs of a node.
func (t *Trace) Inputs(id int64) []int64 {
	var out []int64
	for _, e := range t.Graph.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}
