package function

import (
	"bytes"
	"fmt"
	"os"

	"github.com/aristath/depgraph/internal/value"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of a function catalog.
type catalogFile struct {
	Functions []definitionFile `yaml:"functions"`
}

type definitionFile struct {
	ID             string      `yaml:"id"`
	Name           string      `yaml:"name"`
	TargetType     string      `yaml:"target_type"`
	ExclusionGroup string      `yaml:"exclusion_group"`
	Output         outputFile  `yaml:"output"`
	Inputs         []inputFile `yaml:"inputs"`
}

type outputFile struct {
	Value      string              `yaml:"value"`
	Properties map[string][]string `yaml:"properties"`
}

type inputFile struct {
	Value      string              `yaml:"value"`
	Target     string              `yaml:"target"`
	Properties map[string][]string `yaml:"properties"`
}

// ParseCatalogYAML decodes a catalog from YAML bytes.
func ParseCatalogYAML(data []byte) (*StaticCatalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("function: catalog payload is empty")
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("function: decode catalog: %w", err)
	}
	defs := make([]Definition, 0, len(file.Functions))
	for _, f := range file.Functions {
		def := Definition{
			ID:             f.ID,
			Name:           f.Name,
			TargetType:     value.TargetType(f.TargetType),
			ExclusionGroup: f.ExclusionGroup,
			Output: OutputDeclaration{
				ValueName:  f.Output.Value,
				Properties: value.PropertiesFromMap(f.Output.Properties),
			},
		}
		for _, in := range f.Inputs {
			def.Inputs = append(def.Inputs, InputDeclaration{
				ValueName:  in.Value,
				Target:     in.Target,
				Properties: value.PropertiesFromMap(in.Properties),
			})
		}
		defs = append(defs, def)
	}
	return NewStaticCatalog(defs...)
}

// LoadCatalogFile loads a catalog from a YAML file.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("function: read %s: %w", path, err)
	}
	catalog, err := ParseCatalogYAML(content)
	if err != nil {
		return nil, fmt.Errorf("function: %s: %w", path, err)
	}
	return catalog, nil
}
