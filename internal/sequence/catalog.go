package sequence

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog is the immutable set of sequence definitions the engine knows.
// Built once at startup; safe for concurrent reads.
type Catalog struct {
	definitions map[Type]Definition
}

// BuiltinCatalog returns the catalog containing only the built-in
// definitions.
func BuiltinCatalog() *Catalog {
	catalog := &Catalog{definitions: make(map[Type]Definition)}
	for _, def := range builtinDefinitions() {
		catalog.definitions[def.Type] = def
	}
	return catalog
}

// LoadCatalog builds the catalog, overlaying definitions from the YAML file
// at path when one is configured. An empty path yields the built-ins. File
// entries replace built-in definitions of the same type and may add new
// types; every resulting definition is validated.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := BuiltinCatalog()
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse sequence catalog %s: %w", path, err)
	}

	for _, entry := range file.Sequences {
		def, err := entry.toDefinition()
		if err != nil {
			return nil, fmt.Errorf("sequence catalog %s: %w", path, err)
		}
		catalog.definitions[def.Type] = def
	}

	for _, def := range catalog.definitions {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("sequence catalog %s: %w", path, err)
		}
	}

	return catalog, nil
}

// Get returns the definition for a sequence type.
func (c *Catalog) Get(t Type) (Definition, bool) {
	def, ok := c.definitions[t]
	return def, ok
}

// Types returns all known sequence types in lexical order.
func (c *Catalog) Types() []Type {
	types := make([]Type, 0, len(c.definitions))
	for t := range c.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Has reports whether the catalog knows the sequence type.
func (c *Catalog) Has(t Type) bool {
	_, ok := c.definitions[t]
	return ok
}

// catalogFile is the YAML shape of an external catalog override.
type catalogFile struct {
	Sequences []catalogEntry `yaml:"sequences"`
}

type catalogEntry struct {
	Type              string        `yaml:"type"`
	Name              string        `yaml:"name"`
	FirstStepExternal bool          `yaml:"first_step_external"`
	Steps             []catalogStep `yaml:"steps"`
}

type catalogStep struct {
	Position         int    `yaml:"position"`
	TemplateRef      string `yaml:"template_ref"`
	ProductionOffset string `yaml:"production_offset"`
	TestingOffset    string `yaml:"testing_offset"`
}

func (e catalogEntry) toDefinition() (Definition, error) {
	def := Definition{
		Type:              Type(e.Type),
		Name:              e.Name,
		FirstStepExternal: e.FirstStepExternal,
	}

	for _, s := range e.Steps {
		production, err := parseOffset(s.ProductionOffset)
		if err != nil {
			return Definition{}, fmt.Errorf("sequence %s step %d: production offset: %w", e.Type, s.Position, err)
		}
		testing, err := parseOffset(s.TestingOffset)
		if err != nil {
			return Definition{}, fmt.Errorf("sequence %s step %d: testing offset: %w", e.Type, s.Position, err)
		}
		templateRef := s.TemplateRef
		if templateRef == "" {
			templateRef = fmt.Sprintf("%s.%d", e.Type, s.Position)
		}
		def.Steps = append(def.Steps, newStep(s.Position, templateRef, production, testing))
	}

	return def, nil
}

func parseOffset(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("offset must not be negative, got %s", raw)
	}
	return d, nil
}
