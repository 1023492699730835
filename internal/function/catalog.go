package function

import (
	"context"
	"fmt"

	"github.com/aristath/depgraph/internal/value"
)

// Catalog offers the function applications that could produce a requirement.
// The returned order is the catalog's declared order and must be deterministic.
type Catalog interface {
	CandidatesFor(ctx context.Context, requirement value.ValueRequirement) ([]Application, error)
}

// CatalogFunc adapts a function to Catalog.
type CatalogFunc func(ctx context.Context, requirement value.ValueRequirement) ([]Application, error)

// CandidatesFor implements Catalog.
func (f CatalogFunc) CandidatesFor(ctx context.Context, requirement value.ValueRequirement) ([]Application, error) {
	return f(ctx, requirement)
}

// StaticCatalog is a catalog over a fixed list of definitions. It also serves as the
// ExclusionGroups source for the groups its definitions declare.
type StaticCatalog struct {
	definitions []*Definition
	byID        map[string]*Definition
	byOutput    map[string][]*Definition
}

// NewStaticCatalog validates the definitions and builds the catalog.
func NewStaticCatalog(definitions ...Definition) (*StaticCatalog, error) {
	c := &StaticCatalog{
		definitions: make([]*Definition, 0, len(definitions)),
		byID:        make(map[string]*Definition, len(definitions)),
		byOutput:    make(map[string][]*Definition),
	}
	for i := range definitions {
		def := definitions[i]
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("function: duplicate definition id %q", def.ID)
		}
		d := &def
		c.definitions = append(c.definitions, d)
		c.byID[d.ID] = d
		c.byOutput[d.Output.ValueName] = append(c.byOutput[d.Output.ValueName], d)
	}
	return c, nil
}

// CandidatesFor implements Catalog.
func (c *StaticCatalog) CandidatesFor(ctx context.Context, requirement value.ValueRequirement) ([]Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defs := c.byOutput[requirement.ValueName]
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]Application, 0, len(defs))
	for _, def := range defs {
		app, ok, err := def.Apply(requirement)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, app)
		}
	}
	return out, nil
}

// Definition returns a definition by id.
func (c *StaticCatalog) Definition(id string) (Definition, bool) {
	d, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// Len returns the number of definitions.
func (c *StaticCatalog) Len() int {
	return len(c.definitions)
}

// GroupOf implements ExclusionGroups.
func (c *StaticCatalog) GroupOf(functionID string) (string, bool) {
	d, ok := c.byID[functionID]
	if !ok || d.ExclusionGroup == "" {
		return "", false
	}
	return d.ExclusionGroup, true
}
