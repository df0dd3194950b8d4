// Package validation checks rendered action parameters before dispatch.
package validation

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
)

// ParameterError reports a schema violation. Parameter errors are
// non-retriable: the rendered parameters will not change between attempts.
type ParameterError struct {
	ActionType string
	Reason     string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.ActionType, e.Reason)
}

// ParameterValidator validates rendered parameters for an action type.
type ParameterValidator interface {
	Validate(actionType string, parameters map[string]any) error
}

// AcceptAll is the default validator: every parameter set passes.
type AcceptAll struct{}

// Validate always succeeds
func (AcceptAll) Validate(actionType string, parameters map[string]any) error {
	return nil
}

// SchemaValidator validates parameters against the JSON Schema each
// connector declared at registration time. Compiled schemas are cached
// per action type.
type SchemaValidator struct {
	registry *registry.Registry

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator creates a schema-backed parameter validator
func NewSchemaValidator(reg *registry.Registry) *SchemaValidator {
	return &SchemaValidator{
		registry: reg,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks the parameters against the registered schema.
// Action types without a declared schema pass unconditionally.
func (v *SchemaValidator) Validate(actionType string, parameters map[string]any) error {
	schema, err := v.schemaFor(actionType)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}

	if err := schema.Validate(normalize(parameters)); err != nil {
		return &ParameterError{ActionType: actionType, Reason: err.Error()}
	}
	return nil
}

func (v *SchemaValidator) schemaFor(actionType string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.compiled[actionType]; ok {
		return schema, nil
	}

	meta, ok := v.registry.Metadata(actionType)
	if !ok || len(meta.ParameterSchema) == 0 {
		v.compiled[actionType] = nil
		return nil, nil
	}

	c := jsonschema.NewCompiler()
	resource := fmt.Sprintf("conductor://actions/%s/parameters.json", actionType)
	if err := c.AddResource(resource, normalize(meta.ParameterSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema for %s: %w", actionType, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", actionType, err)
	}

	v.compiled[actionType] = schema
	return schema, nil
}

// normalize converts a Go map into the plain any-tree shape the schema
// validator expects.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
