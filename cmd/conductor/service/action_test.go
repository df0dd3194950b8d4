package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/repository"
)

func TestRegisterAction_PersistsAndWiresHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "Succeeded",
			"outputs": map[string]any{"itemId": "42"},
		})
	}))
	defer srv.Close()

	reg := registry.New()
	catalog := repository.NewMemoryActionCatalog()
	svc := NewActionService(reg, catalog, true, logger.New("error", "text"))

	meta, err := svc.RegisterAction(context.Background(), &RegisterActionRequest{
		ActionType:  "monday.createItem",
		ConnectorID: "monday",
		EndpointURL: srv.URL,
		ParameterSchema: map[string]any{
			"type":     "object",
			"required": []any{"board"},
		},
	})
	require.NoError(t, err)
	assert.True(t, meta.IsEnabled)

	// Persisted.
	listed, err := svc.ListActions(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "monday.createItem", listed[0].ActionType)

	// And dispatchable.
	h, err := reg.Lookup("monday.createItem")
	require.NoError(t, err)
	result := h.Execute(context.Background(), &registry.Invocation{
		NodeID:     "n1",
		Parameters: map[string]any{"board": "b1"},
	})
	assert.Equal(t, models.ActionSucceeded, result.Status)
	assert.Equal(t, "42", result.Outputs["itemId"])
}

func TestRegisterAction_RequiresTypeAndEndpoint(t *testing.T) {
	svc := NewActionService(registry.New(), repository.NewMemoryActionCatalog(), false, logger.New("error", "text"))

	_, err := svc.RegisterAction(context.Background(), &RegisterActionRequest{EndpointURL: "http://x"})
	assert.Error(t, err)

	_, err = svc.RegisterAction(context.Background(), &RegisterActionRequest{ActionType: "a.b"})
	assert.Error(t, err)
}

func TestRegisterAction_RejectsBrokenSchema(t *testing.T) {
	svc := NewActionService(registry.New(), repository.NewMemoryActionCatalog(), true, logger.New("error", "text"))

	_, err := svc.RegisterAction(context.Background(), &RegisterActionRequest{
		ActionType:  "bad.schema",
		EndpointURL: "http://connector.local/run",
		ParameterSchema: map[string]any{
			"type": 42,
		},
	})
	assert.Error(t, err)
}

func TestRegisterConnector_RegistersActionBatch(t *testing.T) {
	reg := registry.New()
	catalog := repository.NewMemoryActionCatalog()
	svc := NewActionService(reg, catalog, false, logger.New("error", "text"))

	disabled := false
	metas, err := svc.RegisterConnector(context.Background(), &RegisterConnectorRequest{
		ConnectorID: "monday",
		Actions: []*RegisterActionRequest{
			{ActionType: "monday.createItem", EndpointURL: "http://connector.local/create"},
			{ActionType: "monday.archiveItem", EndpointURL: "http://connector.local/archive", IsEnabled: &disabled},
		},
	})
	require.NoError(t, err)
	require.Len(t, metas, 2)

	// Entries inherit the envelope's connector id.
	assert.Equal(t, "monday", metas[0].ConnectorID)
	assert.Equal(t, "monday", metas[1].ConnectorID)

	listed, err := svc.ListActions(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = reg.Lookup("monday.createItem")
	assert.NoError(t, err)

	// The disabled action is cataloged but not dispatchable.
	assert.False(t, metas[1].IsEnabled)
	_, err = reg.Lookup("monday.archiveItem")
	assert.Error(t, err)
}

func TestRegisterConnector_InvalidEntryRejectsWholeBatch(t *testing.T) {
	catalog := repository.NewMemoryActionCatalog()
	svc := NewActionService(registry.New(), catalog, false, logger.New("error", "text"))

	_, err := svc.RegisterConnector(context.Background(), &RegisterConnectorRequest{
		ConnectorID: "slack",
		Actions: []*RegisterActionRequest{
			{ActionType: "slack.post", EndpointURL: "http://connector.local/post"},
			{ActionType: "slack.react"}, // no endpoint
		},
	})
	require.Error(t, err)

	listed, err := svc.ListActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRegisterConnector_EmptyBatchRejected(t *testing.T) {
	svc := NewActionService(registry.New(), repository.NewMemoryActionCatalog(), false, logger.New("error", "text"))

	_, err := svc.RegisterConnector(context.Background(), &RegisterConnectorRequest{ConnectorID: "x"})
	assert.Error(t, err)
}

func TestLoadFromCatalog_RehydratesRegistry(t *testing.T) {
	catalog := repository.NewMemoryActionCatalog()
	require.NoError(t, catalog.UpsertAction(context.Background(), &models.ActionMetadata{
		ActionType:  "slack.post",
		EndpointURL: "http://connector.local/slack",
		IsEnabled:   true,
	}))
	require.NoError(t, catalog.UpsertAction(context.Background(), &models.ActionMetadata{
		ActionType:  "jira.create",
		EndpointURL: "http://connector.local/jira",
		IsEnabled:   true,
	}))

	reg := registry.New()
	svc := NewActionService(reg, catalog, false, logger.New("error", "text"))
	require.NoError(t, svc.LoadFromCatalog(context.Background()))

	assert.Equal(t, []string{"jira.create", "slack.post"}, reg.List())
}
