package function

import (
	"sort"
	"strings"
)

// ExclusionGroups maps functions to the group of functions they are mutually exclusive with.
// Two functions of the same group never both appear on one resolution path.
type ExclusionGroups interface {
	GroupOf(functionID string) (string, bool)
}

// StaticExclusionGroups is a fixed function id -> group mapping.
type StaticExclusionGroups map[string]string

// GroupOf implements ExclusionGroups.
func (g StaticExclusionGroups) GroupOf(functionID string) (string, bool) {
	group, ok := g[functionID]
	return group, ok && group != ""
}

// NoExclusions has no groups.
var NoExclusions ExclusionGroups = StaticExclusionGroups(nil)

// ExclusionContext is the immutable set of groups already used on the current resolution path.
// The zero value is the empty context.
type ExclusionContext struct {
	groups []string // sorted
}

// Contains reports whether the group is already on the path.
func (c ExclusionContext) Contains(group string) bool {
	i := sort.SearchStrings(c.groups, group)
	return i < len(c.groups) && c.groups[i] == group
}

// With returns the context extended by group. The receiver is unchanged.
func (c ExclusionContext) With(group string) ExclusionContext {
	if group == "" || c.Contains(group) {
		return c
	}
	groups := make([]string, 0, len(c.groups)+1)
	i := sort.SearchStrings(c.groups, group)
	groups = append(groups, c.groups[:i]...)
	groups = append(groups, group)
	groups = append(groups, c.groups[i:]...)
	return ExclusionContext{groups: groups}
}

// Len returns the number of groups on the path.
func (c ExclusionContext) Len() int {
	return len(c.groups)
}

// signatureEscaper keeps group names containing the separator distinct.
var signatureEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, "|", `\|`)

// Signature is the canonical string form used in cache keys.
func (c ExclusionContext) Signature() string {
	if len(c.groups) == 0 {
		return ""
	}
	escaped := make([]string, len(c.groups))
	for i, g := range c.groups {
		escaped[i] = signatureEscaper.Replace(g)
	}
	return strings.Join(escaped, ",")
}
