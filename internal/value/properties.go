package value

import (
	"sort"
	"strings"
)

// Wildcard is the textual marker for a property that accepts any value.
const Wildcard = "*"

// ValueProperties is an immutable set of named properties. Each name maps to a sorted set of
// acceptable values; an empty set means the property is present with any value (wildcard).
//
// The zero value is an empty property set. Mutating operations return new instances.
type ValueProperties struct {
	props map[string][]string
}

// NewProperties returns an empty property set.
func NewProperties() ValueProperties {
	return ValueProperties{}
}

// With returns a copy with the property set to the given values. Passing no values, or the
// Wildcard marker, makes the property a wildcard.
func (p ValueProperties) With(name string, values ...string) ValueProperties {
	out := p.clone(1)
	out.props[name] = normalizeValues(values)
	return out
}

// WithAny returns a copy with the property set to the wildcard.
func (p ValueProperties) WithAny(name string) ValueProperties {
	return p.With(name)
}

// Without returns a copy with the property removed.
func (p ValueProperties) Without(name string) ValueProperties {
	if _, ok := p.props[name]; !ok {
		return p
	}
	out := p.clone(0)
	delete(out.props, name)
	return out
}

// PropertiesFromMap builds properties from a name -> values map, the shape used by YAML files.
func PropertiesFromMap(m map[string][]string) ValueProperties {
	out := ValueProperties{props: make(map[string][]string, len(m))}
	for name, values := range m {
		out.props[name] = normalizeValues(values)
	}
	return out
}

// ToMap returns a copy of the properties as a name -> values map. Wildcards map to [Wildcard].
func (p ValueProperties) ToMap() map[string][]string {
	out := make(map[string][]string, len(p.props))
	for name, values := range p.props {
		if len(values) == 0 {
			out[name] = []string{Wildcard}
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// IsEmpty reports whether no properties are defined.
func (p ValueProperties) IsEmpty() bool {
	return len(p.props) == 0
}

// Names returns the property names in sorted order.
func (p ValueProperties) Names() []string {
	names := make([]string, 0, len(p.props))
	for name := range p.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the property is defined.
func (p ValueProperties) Has(name string) bool {
	_, ok := p.props[name]
	return ok
}

// Values returns the sorted values of a property. The second result is false when the
// property is not defined. A wildcard property returns an empty slice and true.
func (p ValueProperties) Values(name string) ([]string, bool) {
	values, ok := p.props[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), values...), true
}

// IsWildcard reports whether the property is defined and accepts any value.
func (p ValueProperties) IsWildcard(name string) bool {
	values, ok := p.props[name]
	return ok && len(values) == 0
}

// IsConcrete reports whether no property is a wildcard.
func (p ValueProperties) IsConcrete() bool {
	for _, values := range p.props {
		if len(values) == 0 {
			return false
		}
	}
	return true
}

// Satisfies reports whether these properties meet every constraint. A wildcard constraint only
// requires the property to be present; an enumerated constraint requires at least one shared value.
func (p ValueProperties) Satisfies(constraints ValueProperties) bool {
	for name, allowed := range constraints.props {
		have, ok := p.props[name]
		if !ok {
			return false
		}
		if len(allowed) == 0 {
			continue
		}
		if len(have) == 0 {
			return false
		}
		if !intersects(have, allowed) {
			return false
		}
	}
	return true
}

// CanSatisfy reports whether a producer declaring these properties could be narrowed to meet the
// constraints. Unlike Satisfies, a wildcard on the producer side is compatible with any constraint.
func (p ValueProperties) CanSatisfy(constraints ValueProperties) bool {
	for name, allowed := range constraints.props {
		have, ok := p.props[name]
		if !ok {
			return false
		}
		if len(have) == 0 || len(allowed) == 0 {
			continue
		}
		if !intersects(have, allowed) {
			return false
		}
	}
	return true
}

// Compose narrows producer properties by the constraints. The second result is false when the
// result would not be concrete, or when a constraint cannot be met.
func (p ValueProperties) Compose(constraints ValueProperties) (ValueProperties, bool) {
	if !p.CanSatisfy(constraints) {
		return ValueProperties{}, false
	}
	out := ValueProperties{props: make(map[string][]string, len(p.props))}
	for name, declared := range p.props {
		allowed, constrained := constraints.props[name]
		switch {
		case !constrained || len(allowed) == 0:
			if len(declared) == 0 {
				return ValueProperties{}, false
			}
			out.props[name] = declared
		case len(declared) == 0:
			out.props[name] = allowed
		default:
			out.props[name] = intersection(declared, allowed)
		}
	}
	return out, true
}

// Intersect returns the properties both sides accept. A property defined on only one side is
// kept as is. The second result is false when an enumerated property has no common value.
func (p ValueProperties) Intersect(other ValueProperties) (ValueProperties, bool) {
	out := p.clone(len(other.props))
	for name, theirs := range other.props {
		mine, ok := out.props[name]
		switch {
		case !ok || len(mine) == 0:
			out.props[name] = theirs
		case len(theirs) == 0:
		default:
			common := intersection(mine, theirs)
			if len(common) == 0 {
				return ValueProperties{}, false
			}
			out.props[name] = common
		}
	}
	return out, true
}

// Equal reports structural equality.
func (p ValueProperties) Equal(other ValueProperties) bool {
	return p.String() == other.String()
}

// String returns the canonical form, e.g. "{Curve=[Forward],Currency=*}". Delimiters inside
// names and values are backslash-escaped, so distinct property sets never share a form.
func (p ValueProperties) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range p.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeKey(name))
		b.WriteByte('=')
		values := p.props[name]
		if len(values) == 0 {
			b.WriteString(Wildcard)
			continue
		}
		b.WriteByte('[')
		for j, v := range values {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(EscapeKey(v))
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}

func (p ValueProperties) clone(extra int) ValueProperties {
	out := ValueProperties{props: make(map[string][]string, len(p.props)+extra)}
	for name, values := range p.props {
		out.props[name] = values
	}
	return out
}

// normalizeValues sorts and deduplicates; a nil result is the wildcard.
func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == Wildcard {
			return nil
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if containsSorted(b, v) {
			return true
		}
	}
	return false
}

func intersection(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, v := range a {
		if containsSorted(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsSorted(values []string, v string) bool {
	i := sort.SearchStrings(values, v)
	return i < len(values) && values[i] == v
}
