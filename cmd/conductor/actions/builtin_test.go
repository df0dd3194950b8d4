package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/models"
)

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New()
	RegisterBuiltins(reg)

	for _, actionType := range []string{"core.echo", "core.delay", "core.transform"} {
		_, err := reg.Lookup(actionType)
		assert.NoError(t, err, actionType)
	}
}

func TestEchoHandler(t *testing.T) {
	h := &EchoHandler{}

	result := h.Execute(context.Background(), &registry.Invocation{
		Parameters: map[string]any{"message": "hello"},
	})
	require.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, "hello", result.Outputs["echo"])
}

func TestDelayHandler_InvalidDurationFails(t *testing.T) {
	h := &DelayHandler{}

	result := h.Execute(context.Background(), &registry.Invocation{
		Parameters: map[string]any{"duration": "soon"},
	})
	assert.Equal(t, models.ActionFailed, result.Status)
}

func TestDelayHandler_CancellationIsRetriable(t *testing.T) {
	h := &DelayHandler{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := h.Execute(ctx, &registry.Invocation{
		Parameters: map[string]any{"duration": "10s"},
	})
	assert.Equal(t, models.ActionRetriableFailure, result.Status)
}

func TestTransformHandler(t *testing.T) {
	h := &TransformHandler{}

	result := h.Execute(context.Background(), &registry.Invocation{
		Parameters: map[string]any{
			"fields": map[string]any{"total": 41.5, "label": "x"},
		},
	})
	require.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, 41.5, result.Outputs["total"])
	assert.Equal(t, "x", result.Outputs["label"])

	missing := h.Execute(context.Background(), &registry.Invocation{Parameters: map[string]any{}})
	assert.Equal(t, models.ActionFailed, missing.Status)
}
