package testing

import (
	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/portfolio"
	"github.com/aristath/depgraph/internal/value"
)

// USD is the currency target the curve fixtures live on.
var USD = value.NewTarget(value.TargetCurrency, "USD")

// MarketDataFixture is one available market data value.
type MarketDataFixture struct {
	ValueName  string
	Target     value.ComputationTarget
	Properties value.ValueProperties
}

// NewCurveFixtures returns the forward and discount USD yield curves.
func NewCurveFixtures() []MarketDataFixture {
	return []MarketDataFixture{
		{ValueName: "YIELD_CURVE", Target: USD, Properties: value.NewProperties().With("Curve", "Forward")},
		{ValueName: "YIELD_CURVE", Target: USD, Properties: value.NewProperties().With("Curve", "Discount")},
	}
}

// PresentValueFunction returns a function producing PRESENT_VALUE on targetType from the USD
// curve named curve.
func PresentValueFunction(id string, targetType value.TargetType, curve string) function.Definition {
	return function.Definition{
		ID:         id,
		TargetType: targetType,
		Output:     function.OutputDeclaration{ValueName: "PRESENT_VALUE"},
		Inputs: []function.InputDeclaration{{
			ValueName:  "YIELD_CURVE",
			Target:     USD.Key(),
			Properties: value.NewProperties().With("Curve", curve),
		}},
	}
}

// NewPortfolioFixture returns a two level portfolio: a root node holding a bond book with one
// bond position (two trades) and one equity position (one trade).
func NewPortfolioFixture() *portfolio.Portfolio {
	return &portfolio.Portfolio{
		ID:   "book",
		Name: "Test book",
		Root: &portfolio.Node{
			ID:   "root",
			Name: "Root",
			Children: []*portfolio.Node{{
				ID:   "bonds",
				Name: "Bonds",
				Positions: []portfolio.Position{
					{
						ID:           "p1",
						SecurityID:   "BOND1",
						SecurityType: "BOND",
						Currency:     "USD",
						Quantity:     100,
						Trades:       []portfolio.Trade{{ID: "t1", Quantity: 60}, {ID: "t2", Quantity: 40}},
					},
					{
						ID:           "p2",
						SecurityID:   "AAPL",
						SecurityType: "EQUITY",
						Currency:     "USD",
						Quantity:     10,
						Trades:       []portfolio.Trade{{ID: "t3", Quantity: 10}},
					},
				},
			}},
		},
	}
}
