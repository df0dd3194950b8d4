package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/cmd/conductor/service"
	"github.com/flowmatic/conductor/common/repository"
)

// ExecutionHandler handles submission and inspection of executions
type ExecutionHandler struct {
	executions *service.ExecutionService
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(executions *service.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executions: executions}
}

// SubmitExecution submits one execution of a workflow
// POST /api/v1/workflows/:id/executions
func (h *ExecutionHandler) SubmitExecution(c echo.Context) error {
	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.WorkflowID = c.Param("id")
	if req.RequestID == "" {
		req.RequestID = c.Request().Header.Get("Idempotency-Key")
	}

	resp, err := h.executions.Submit(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		if errors.Is(err, service.ErrDraftExecution) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if resp.Deduplicated {
		return c.JSON(http.StatusOK, resp)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// GetExecution returns an execution with its action telemetry
// GET /api/v1/executions/:id
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution id")
	}

	detail, err := h.executions.GetExecution(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}
