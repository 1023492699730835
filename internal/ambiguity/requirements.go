// Package ambiguity checks every requirement a view asks of a portfolio for resolution
// ambiguity. Requirements are fanned out over a work pool, classified as they complete and
// collected into a trace.
package ambiguity

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/aristath/depgraph/internal/value"
	"gopkg.in/yaml.v3"
)

// Template is a requirement without a target: a value name and its constraints.
type Template struct {
	ValueName   string
	Constraints value.ValueProperties
}

// Key identifies the template.
func (t Template) Key() string {
	return t.ValueName + t.Constraints.String()
}

// Requirement binds the template to a target.
func (t Template) Requirement(target value.ComputationTarget) value.ValueRequirement {
	return value.NewRequirement(t.ValueName, target, t.Constraints)
}

// RequirementSet holds the templates requested for each security type, in declaration order
// and without duplicates. It corresponds to one calculation configuration of a view.
type RequirementSet struct {
	Name           string
	bySecurityType map[string][]Template
	keys           map[string]map[string]bool
}

// NewRequirementSet creates an empty set.
func NewRequirementSet(name string) *RequirementSet {
	return &RequirementSet{
		Name:           name,
		bySecurityType: make(map[string][]Template),
		keys:           make(map[string]map[string]bool),
	}
}

// Add adds templates for a security type. Duplicates are ignored.
func (s *RequirementSet) Add(securityType string, templates ...Template) *RequirementSet {
	seen := s.keys[securityType]
	if seen == nil {
		seen = make(map[string]bool)
		s.keys[securityType] = seen
	}
	for _, t := range templates {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		s.bySecurityType[securityType] = append(s.bySecurityType[securityType], t)
	}
	return s
}

// For returns the templates requested for a security type.
func (s *RequirementSet) For(securityType string) []Template {
	return s.bySecurityType[securityType]
}

// SecurityTypes returns the security types with requirements, sorted.
func (s *RequirementSet) SecurityTypes() []string {
	types := make([]string, 0, len(s.bySecurityType))
	for t := range s.bySecurityType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of templates across all security types.
func (s *RequirementSet) Len() int {
	n := 0
	for _, templates := range s.bySecurityType {
		n += len(templates)
	}
	return n
}

// View is a named list of calculation configurations.
type View struct {
	Name           string
	Configurations []*RequirementSet
}

type viewFile struct {
	Name           string              `yaml:"name"`
	Configurations []configurationFile `yaml:"configurations"`
}

type configurationFile struct {
	Name         string                    `yaml:"name"`
	Requirements map[string][]templateFile `yaml:"requirements"`
}

type templateFile struct {
	Value      string              `yaml:"value"`
	Properties map[string][]string `yaml:"properties"`
}

// ParseViewYAML decodes a view from YAML bytes.
func ParseViewYAML(data []byte) (*View, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("ambiguity: view payload is empty")
	}
	var file viewFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ambiguity: decode view: %w", err)
	}
	if len(file.Configurations) == 0 {
		return nil, fmt.Errorf("ambiguity: view %q has no configurations", file.Name)
	}

	view := &View{Name: file.Name}
	names := make(map[string]bool)
	for i, cfg := range file.Configurations {
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("config-%d", i)
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("ambiguity: duplicate configuration %q", cfg.Name)
		}
		names[cfg.Name] = true

		set := NewRequirementSet(cfg.Name)
		securityTypes := make([]string, 0, len(cfg.Requirements))
		for securityType := range cfg.Requirements {
			securityTypes = append(securityTypes, securityType)
		}
		sort.Strings(securityTypes)
		for _, securityType := range securityTypes {
			for _, t := range cfg.Requirements[securityType] {
				if t.Value == "" {
					return nil, fmt.Errorf("ambiguity: configuration %s: %s requirement without value name", cfg.Name, securityType)
				}
				set.Add(securityType, Template{ValueName: t.Value, Constraints: value.PropertiesFromMap(t.Properties)})
			}
		}
		view.Configurations = append(view.Configurations, set)
	}
	return view, nil
}

// LoadViewFile loads a view from a YAML file.
func LoadViewFile(path string) (*View, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ambiguity: read %s: %w", path, err)
	}
	view, err := ParseViewYAML(content)
	if err != nil {
		return nil, fmt.Errorf("ambiguity: %s: %w", path, err)
	}
	return view, nil
}
