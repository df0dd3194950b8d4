package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/cmd/conductor/service"
)

// ActionHandler handles connector action administration
type ActionHandler struct {
	actions *service.ActionService
}

// NewActionHandler creates a new action handler
func NewActionHandler(actions *service.ActionService) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// RegisterAction registers or replaces a connector's action list
// POST /api/v1/admin/actions/register
func (h *ActionHandler) RegisterAction(c echo.Context) error {
	var req service.RegisterConnectorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	metas, err := h.actions.RegisterConnector(c.Request().Context(), &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"connectorId": req.ConnectorID,
		"actions":     metas,
	})
}

// ListActions lists the registered action catalog
// GET /api/v1/admin/actions
func (h *ActionHandler) ListActions(c echo.Context) error {
	metas, err := h.actions.ListActions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": metas})
}
