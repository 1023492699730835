package value

import "fmt"

// MarketDataFunction is the producer id recorded on specifications that come straight from
// market data rather than from a function application.
const MarketDataFunction = "MarketData"

// ValueRequirement is a request for a named value on a target, subject to constraints.
type ValueRequirement struct {
	ValueName   string
	Target      ComputationTarget
	Constraints ValueProperties
}

// NewRequirement creates a requirement.
func NewRequirement(valueName string, target ComputationTarget, constraints ValueProperties) ValueRequirement {
	return ValueRequirement{ValueName: valueName, Target: target, Constraints: constraints}
}

// Key is the structural identity of the requirement, target included.
func (r ValueRequirement) Key() string {
	return EscapeKey(r.ValueName) + "@" + r.Target.Key() + r.Constraints.String()
}

// Equal reports structural equality.
func (r ValueRequirement) Equal(other ValueRequirement) bool {
	return r.Key() == other.Key()
}

// String implements fmt.Stringer.
func (r ValueRequirement) String() string {
	return r.Key()
}

// Validate checks that the requirement is well formed.
func (r ValueRequirement) Validate() error {
	if r.ValueName == "" {
		return fmt.Errorf("value: requirement has no value name")
	}
	if !r.Target.Type.IsValid() || r.Target.ID == "" {
		return fmt.Errorf("value: requirement %s has invalid target", r.ValueName)
	}
	return nil
}

// ValueSpecification is a concrete resolved output.
type ValueSpecification struct {
	ValueName  string
	Target     ComputationTarget
	Properties ValueProperties
	// FunctionID is the producing function, or MarketDataFunction.
	FunctionID string
}

// NewSpecification creates a specification.
func NewSpecification(valueName string, target ComputationTarget, properties ValueProperties, functionID string) ValueSpecification {
	return ValueSpecification{ValueName: valueName, Target: target, Properties: properties, FunctionID: functionID}
}

// Key is the identity used to deduplicate graph nodes.
func (s ValueSpecification) Key() string {
	return EscapeKey(s.ValueName) + "@" + s.Target.Key() + s.Properties.String() + "<" + EscapeKey(s.FunctionID) + ">"
}

// IsMarketData reports whether the value comes from raw market data.
func (s ValueSpecification) IsMarketData() bool {
	return s.FunctionID == MarketDataFunction
}

// String implements fmt.Stringer.
func (s ValueSpecification) String() string {
	return s.Key()
}

// Satisfies reports whether the specification is a valid answer to the requirement: same value
// name and target, concrete properties, and every constraint met.
func (s ValueSpecification) Satisfies(r ValueRequirement) bool {
	if s.ValueName != r.ValueName || s.Target != r.Target {
		return false
	}
	if !s.Properties.IsConcrete() {
		return false
	}
	return s.Properties.Satisfies(r.Constraints)
}
