// Package value holds the immutable descriptors the resolver works with: computation targets,
// property constraints, value requirements and the value specifications that satisfy them.
package value

import "fmt"

// TargetType identifies the kind of object a value is computed for.
type TargetType string

const (
	TargetPortfolioNode TargetType = "PORTFOLIO_NODE"
	TargetPosition      TargetType = "POSITION"
	TargetTrade         TargetType = "TRADE"
	TargetSecurity      TargetType = "SECURITY"
	TargetCurrency      TargetType = "CURRENCY"
	TargetPrimitive     TargetType = "PRIMITIVE"
)

// IsValid reports whether the target type is one of the known kinds.
func (t TargetType) IsValid() bool {
	switch t {
	case TargetPortfolioNode, TargetPosition, TargetTrade, TargetSecurity, TargetCurrency, TargetPrimitive:
		return true
	default:
		return false
	}
}

const (
	typeSeparator    = "~"
	contextSeparator = "/"
)

// ComputationTarget is a typed reference to the object a value is computed for.
// It is a comparable value so it can be used directly as a map key.
type ComputationTarget struct {
	Type TargetType
	ID   string
	// Context is the key of the enclosing target (e.g. the portfolio node holding a position).
	// Empty for top-level targets.
	Context string
}

// NewTarget creates a top-level target.
func NewTarget(targetType TargetType, id string) ComputationTarget {
	return ComputationTarget{Type: targetType, ID: id}
}

// Containing returns a target of the given type nested inside this one.
func (t ComputationTarget) Containing(targetType TargetType, id string) ComputationTarget {
	return ComputationTarget{Type: targetType, ID: id, Context: t.Key()}
}

// Parent returns the enclosing target, if there is one.
func (t ComputationTarget) Parent() (ComputationTarget, bool) {
	if t.Context == "" {
		return ComputationTarget{}, false
	}
	parent, err := ParseTarget(t.Context)
	if err != nil {
		return ComputationTarget{}, false
	}
	return parent, true
}

// IsZero reports whether the target is unset.
func (t ComputationTarget) IsZero() bool {
	return t.Type == "" && t.ID == ""
}

// Key returns the canonical string form, e.g. "PORTFOLIO_NODE~n1/POSITION~p7". Separator
// characters inside ids are backslash-escaped.
func (t ComputationTarget) Key() string {
	own := string(t.Type) + typeSeparator + EscapeKey(t.ID)
	if t.Context == "" {
		return own
	}
	return t.Context + contextSeparator + own
}

// String implements fmt.Stringer.
func (t ComputationTarget) String() string {
	return t.Key()
}

// ParseTarget parses the output of Key.
func ParseTarget(key string) (ComputationTarget, error) {
	if key == "" {
		return ComputationTarget{}, fmt.Errorf("value: empty target key")
	}
	context := ""
	own := key
	if idx := indexUnescaped(key, contextSeparator[0], true); idx >= 0 {
		context = key[:idx]
		own = key[idx+1:]
	}
	cut := indexUnescaped(own, typeSeparator[0], false)
	if cut <= 0 || cut == len(own)-1 {
		return ComputationTarget{}, fmt.Errorf("value: malformed target key %q", key)
	}
	typ, id := own[:cut], unescapeKey(own[cut+1:])
	target := ComputationTarget{Type: TargetType(typ), ID: id, Context: context}
	if !target.Type.IsValid() {
		return ComputationTarget{}, fmt.Errorf("value: unknown target type %q in %q", typ, key)
	}
	return target, nil
}
