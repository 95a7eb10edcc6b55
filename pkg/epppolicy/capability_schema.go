package epppolicy

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CapabilitySchema validates an envelope's advisory "capabilities"
// extension (spec §3 glossary: extension attributes are never part of the
// signing preimage and never gate admission; this validator is strictly
// additive tooling for operators who want to reject malformed capability
// declarations before handing the envelope to an executor).
type CapabilitySchema struct {
	compiled *jsonschema.Schema
}

// CompileCapabilitySchema compiles a JSON Schema (2020-12 draft) describing
// the shape a sender's capabilities object must take.
func CompileCapabilitySchema(name, schemaJSON string) (*CapabilitySchema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://epp.local/schemas/capabilities/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("epppolicy: load capability schema %q: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("epppolicy: compile capability schema %q: %w", name, err)
	}
	return &CapabilitySchema{compiled: compiled}, nil
}

// Validate checks capabilities against the compiled schema. A nil
// capabilities map is treated as valid only if the schema permits it.
func (s *CapabilitySchema) Validate(capabilities map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if err := s.compiled.Validate(capabilities); err != nil {
		return fmt.Errorf("capabilities failed schema validation: %w", err)
	}
	return nil
}
