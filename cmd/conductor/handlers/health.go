package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/common/bootstrap"
)

// HealthHandler reports component health
type HealthHandler struct {
	components *bootstrap.Components
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(components *bootstrap.Components) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health checks database and Redis connectivity
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	if err := h.components.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
