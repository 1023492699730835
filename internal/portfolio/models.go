// Package portfolio provides the portfolio tree whose nodes, positions and trades are the
// computation targets of an ambiguity check.
package portfolio

import (
	"fmt"

	"github.com/aristath/depgraph/internal/value"
)

// Trade represents a booked trade of a position
type Trade struct {
	ID       string  `yaml:"id" json:"id"`
	Quantity float64 `yaml:"quantity" json:"quantity"`
	Currency string  `yaml:"currency" json:"currency"`
}

// Position represents a holding of one security
type Position struct {
	ID           string  `yaml:"id" json:"id"`
	SecurityID   string  `yaml:"security_id" json:"security_id"`
	SecurityType string  `yaml:"security_type" json:"security_type"`
	Currency     string  `yaml:"currency" json:"currency"`
	Quantity     float64 `yaml:"quantity" json:"quantity"`
	Trades       []Trade `yaml:"trades" json:"trades"`
}

// Node is a portfolio node holding positions and child nodes
type Node struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Children  []*Node    `yaml:"children" json:"children"`
	Positions []Position `yaml:"positions" json:"positions"`
}

// Portfolio is a named tree of nodes
type Portfolio struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Root *Node  `yaml:"root" json:"root"`
}

// Validate checks that the portfolio has a root and that node, position and trade ids are unique.
func (p *Portfolio) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("portfolio: missing id")
	}
	if p.Root == nil {
		return fmt.Errorf("portfolio %s: missing root node", p.ID)
	}
	nodes := make(map[string]bool)
	positions := make(map[string]bool)
	trades := make(map[string]bool)
	var err error
	p.Walk(func(n *Node, _ int) bool {
		switch {
		case n.ID == "":
			err = fmt.Errorf("portfolio %s: node without id", p.ID)
		case nodes[n.ID]:
			err = fmt.Errorf("portfolio %s: duplicate node %s", p.ID, n.ID)
		}
		if err != nil {
			return false
		}
		nodes[n.ID] = true
		for _, pos := range n.Positions {
			switch {
			case pos.ID == "":
				err = fmt.Errorf("portfolio %s: node %s has a position without id", p.ID, n.ID)
			case positions[pos.ID]:
				err = fmt.Errorf("portfolio %s: duplicate position %s", p.ID, pos.ID)
			case pos.SecurityID == "":
				err = fmt.Errorf("portfolio %s: position %s has no security", p.ID, pos.ID)
			}
			if err != nil {
				return false
			}
			positions[pos.ID] = true
			for _, tr := range pos.Trades {
				if tr.ID == "" || trades[tr.ID] {
					err = fmt.Errorf("portfolio %s: position %s has a missing or duplicate trade id %q", p.ID, pos.ID, tr.ID)
					return false
				}
				trades[tr.ID] = true
			}
		}
		return true
	})
	return err
}

// Walk visits nodes depth first, parents before children. Returning false stops the walk.
func (p *Portfolio) Walk(fn func(n *Node, depth int) bool) {
	if p.Root == nil {
		return
	}
	walk(p.Root, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	for _, child := range n.Children {
		if child == nil {
			continue
		}
		if !walk(child, depth+1, fn) {
			return false
		}
	}
	return true
}

// Counts returns the number of nodes, positions and trades.
func (p *Portfolio) Counts() (nodes, positions, trades int) {
	p.Walk(func(n *Node, _ int) bool {
		nodes++
		positions += len(n.Positions)
		for _, pos := range n.Positions {
			trades += len(pos.Trades)
		}
		return true
	})
	return nodes, positions, trades
}

// NodeTarget is the computation target of a node.
func NodeTarget(n *Node) value.ComputationTarget {
	return value.NewTarget(value.TargetPortfolioNode, n.ID)
}

// PositionTarget is the computation target of a position, contained in its node.
func PositionTarget(n *Node, pos Position) value.ComputationTarget {
	return NodeTarget(n).Containing(value.TargetPosition, pos.ID)
}

// TradeTarget is the computation target of a trade.
func TradeTarget(tr Trade) value.ComputationTarget {
	return value.NewTarget(value.TargetTrade, tr.ID)
}

// SecurityTarget is the computation target of the security a position holds.
func SecurityTarget(pos Position) value.ComputationTarget {
	return value.NewTarget(value.TargetSecurity, pos.SecurityID)
}
