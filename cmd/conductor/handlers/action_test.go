package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/cmd/conductor/service"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/repository"
)

func TestRegisterAction_AcceptsConnectorBatchBody(t *testing.T) {
	reg := registry.New()
	catalog := repository.NewMemoryActionCatalog()
	svc := service.NewActionService(reg, catalog, true, logger.New("error", "text"))
	h := NewActionHandler(svc)

	body := `{
		"connectorId": "monday",
		"actions": [
			{
				"actionType": "monday.createItem",
				"displayName": "Create item",
				"description": "Creates a board item",
				"endpointUrl": "http://connector.local/create",
				"parameterSchema": {"type": "object", "required": ["board"]},
				"outputSchema": {"type": "object"},
				"requiresAuth": true,
				"isEnabled": true
			},
			{
				"actionType": "monday.archiveItem",
				"endpointUrl": "http://connector.local/archive",
				"isEnabled": false
			}
		]
	}`

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/actions/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.RegisterAction(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	listed, err := svc.ListActions(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)

	_, err = reg.Lookup("monday.createItem")
	assert.NoError(t, err)
	_, err = reg.Lookup("monday.archiveItem")
	assert.Error(t, err) // registered disabled
}

func TestRegisterAction_RejectsBodyWithoutActions(t *testing.T) {
	svc := service.NewActionService(registry.New(), repository.NewMemoryActionCatalog(), false, logger.New("error", "text"))
	h := NewActionHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/actions/register", strings.NewReader(`{"connectorId": "x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.RegisterAction(e.NewContext(req, rec))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
