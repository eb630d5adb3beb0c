// File: internal/mcp/schema.go
package mcp

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// NewTool describes a tool whose input is the struct type T. The input
// schema is reflected from T's exported fields, in declaration order, so
// clients see parameters in the same order the struct lists them.
//
// Fields tagged omitempty are optional; defaults can be advertised with
// `jsonschema:"default=..."`.
func NewTool[T any](name, description string) (Tool, error) {
	reflector := jsonschema.Reflector{
		// Inline everything; tool schemas are flat objects.
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: failed to encode schema: %w", name, err)
	}
	return Tool{Name: name, Description: description, InputSchema: raw}, nil
}

// BindArguments decodes loosely typed call arguments into a typed input
// struct. Fields already set on dst act as defaults for absent arguments.
func BindArguments[T any](args map[string]any, dst *T) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("arguments do not match the input schema: %w", err)
	}
	return nil
}
