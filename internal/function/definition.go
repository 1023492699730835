// Package function describes the computation units the resolver can compose: their declared
// outputs and inputs, the catalog that offers them as candidates for a requirement, and the
// exclusion groups that keep mutually exclusive functions off one resolution path.
package function

import (
	"fmt"
	"strings"

	"github.com/aristath/depgraph/internal/value"
)

// Input target selectors understood by InputDeclaration.Target besides an explicit target key.
const (
	TargetSelf   = "self"
	TargetParent = "parent"
)

// OutputDeclaration is the value a function can produce. Wildcard properties are narrowed to
// the requirement's constraints when the function is applied.
type OutputDeclaration struct {
	ValueName  string
	Properties value.ValueProperties
}

// InputDeclaration is one input a function needs. Target is TargetSelf (the default),
// TargetParent, or a target key such as "CURRENCY~USD". Property values and the target key may
// reference composed output properties as "$Name".
type InputDeclaration struct {
	ValueName  string
	Target     string
	Properties value.ValueProperties
}

// Definition is a function as declared to the catalog.
type Definition struct {
	ID   string
	Name string
	// TargetType restricts the targets the function applies to; empty means any.
	TargetType     value.TargetType
	Output         OutputDeclaration
	Inputs         []InputDeclaration
	ExclusionGroup string
}

// Validate checks the declaration for errors that can be detected before any requirement is seen.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("function: definition has no id")
	}
	if d.Output.ValueName == "" {
		return fmt.Errorf("function %s: output has no value name", d.ID)
	}
	if d.TargetType != "" && !d.TargetType.IsValid() {
		return fmt.Errorf("function %s: unknown target type %q", d.ID, d.TargetType)
	}
	for i, in := range d.Inputs {
		if in.ValueName == "" {
			return fmt.Errorf("function %s: input %d has no value name", d.ID, i)
		}
		switch {
		case in.Target == "" || in.Target == TargetSelf || in.Target == TargetParent:
		case strings.Contains(in.Target, "$"):
		default:
			if _, err := value.ParseTarget(in.Target); err != nil {
				return fmt.Errorf("function %s: input %d: %w", d.ID, i, err)
			}
		}
		for _, name := range in.Properties.Names() {
			values, _ := in.Properties.Values(name)
			for _, v := range values {
				if ref, ok := propertyRef(v); ok && !d.Output.Properties.Has(ref) {
					return fmt.Errorf("function %s: input %d references undeclared output property %q", d.ID, i, ref)
				}
			}
		}
	}
	return nil
}

// Application is a function applied to a specific requirement: the concrete output it would
// produce and the input requirements it needs for that.
type Application struct {
	Function *Definition
	Output   value.ValueSpecification
	Inputs   []value.ValueRequirement
}

// FunctionID returns the id of the applied function.
func (a Application) FunctionID() string {
	if a.Function == nil {
		return ""
	}
	return a.Function.ID
}

// String implements fmt.Stringer.
func (a Application) String() string {
	return a.FunctionID() + " -> " + a.Output.Key()
}

// Apply produces the application of the definition to a requirement. The second result is false
// when the definition cannot produce a value meeting the requirement.
func (d *Definition) Apply(requirement value.ValueRequirement) (Application, bool, error) {
	if d.Output.ValueName != requirement.ValueName {
		return Application{}, false, nil
	}
	if d.TargetType != "" && d.TargetType != requirement.Target.Type {
		return Application{}, false, nil
	}
	composed, ok := d.Output.Properties.Compose(requirement.Constraints)
	if !ok {
		return Application{}, false, nil
	}

	inputs := make([]value.ValueRequirement, 0, len(d.Inputs))
	for _, in := range d.Inputs {
		target, ok, err := d.inputTarget(in, requirement.Target, composed)
		if err != nil || !ok {
			return Application{}, false, err
		}
		constraints, ok := substitute(in.Properties, composed)
		if !ok {
			return Application{}, false, nil
		}
		inputs = append(inputs, value.NewRequirement(in.ValueName, target, constraints))
	}

	return Application{
		Function: d,
		Output:   value.NewSpecification(requirement.ValueName, requirement.Target, composed, d.ID),
		Inputs:   inputs,
	}, true, nil
}

func (d *Definition) inputTarget(in InputDeclaration, self value.ComputationTarget, composed value.ValueProperties) (value.ComputationTarget, bool, error) {
	switch in.Target {
	case "", TargetSelf:
		return self, true, nil
	case TargetParent:
		parent, ok := self.Parent()
		return parent, ok, nil
	}
	key := in.Target
	for strings.Contains(key, "$") {
		start := strings.Index(key, "$")
		end := start + 1
		for end < len(key) && isRefChar(key[end]) {
			end++
		}
		values, ok := composed.Values(key[start+1 : end])
		if !ok || len(values) != 1 {
			return value.ComputationTarget{}, false, nil
		}
		key = key[:start] + value.EscapeKey(values[0]) + key[end:]
	}
	target, err := value.ParseTarget(key)
	if err != nil {
		return value.ComputationTarget{}, false, fmt.Errorf("function %s: input %s: %w", d.ID, in.ValueName, err)
	}
	return target, true, nil
}

// substitute replaces "$Name" values with the composed output values of Name.
func substitute(props, composed value.ValueProperties) (value.ValueProperties, bool) {
	out := value.NewProperties()
	for _, name := range props.Names() {
		values, _ := props.Values(name)
		if len(values) == 0 {
			out = out.WithAny(name)
			continue
		}
		expanded := make([]string, 0, len(values))
		for _, v := range values {
			ref, isRef := propertyRef(v)
			if !isRef {
				expanded = append(expanded, v)
				continue
			}
			refValues, ok := composed.Values(ref)
			if !ok || len(refValues) == 0 {
				return value.ValueProperties{}, false
			}
			expanded = append(expanded, refValues...)
		}
		out = out.With(name, expanded...)
	}
	return out, true
}

func propertyRef(v string) (string, bool) {
	if len(v) > 1 && v[0] == '$' {
		return v[1:], true
	}
	return "", false
}

func isRefChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
