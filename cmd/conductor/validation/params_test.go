package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/models"
)

type noopHandler struct{ typeName string }

func (h *noopHandler) Type() string { return h.typeName }
func (h *noopHandler) Execute(ctx context.Context, inv *registry.Invocation) *registry.Result {
	return registry.Succeeded(nil)
}

func registryWithSchema(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.RegisterWithMetadata(&noopHandler{typeName: "slack.post"}, &models.ActionMetadata{
		ActionType: "slack.post",
		IsEnabled:  true,
		ParameterSchema: map[string]any{
			"type":     "object",
			"required": []any{"channel", "message"},
			"properties": map[string]any{
				"channel": map[string]any{"type": "string"},
				"message": map[string]any{"type": "string"},
				"limit":   map[string]any{"type": "integer"},
			},
		},
	})
	return reg
}

func TestAcceptAll(t *testing.T) {
	err := AcceptAll{}.Validate("anything", map[string]any{"x": 1})
	assert.NoError(t, err)
}

func TestSchemaValidator_ValidParameters(t *testing.T) {
	v := NewSchemaValidator(registryWithSchema(t))

	err := v.Validate("slack.post", map[string]any{
		"channel": "#ops",
		"message": "deploy done",
	})
	assert.NoError(t, err)
}

func TestSchemaValidator_MissingRequiredField(t *testing.T) {
	v := NewSchemaValidator(registryWithSchema(t))

	err := v.Validate("slack.post", map[string]any{"channel": "#ops"})
	var perr *ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "slack.post", perr.ActionType)
}

func TestSchemaValidator_WrongType(t *testing.T) {
	v := NewSchemaValidator(registryWithSchema(t))

	err := v.Validate("slack.post", map[string]any{
		"channel": "#ops",
		"message": "hi",
		"limit":   "not a number",
	})
	assert.Error(t, err)
}

func TestSchemaValidator_NoSchemaPasses(t *testing.T) {
	reg := registry.New()
	reg.Register(&noopHandler{typeName: "core.echo"})
	v := NewSchemaValidator(reg)

	err := v.Validate("core.echo", map[string]any{"anything": true})
	assert.NoError(t, err)
}
