package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/cmd/conductor/service"
	"github.com/flowmatic/conductor/common/repository"
)

// WorkflowHandler handles workflow catalog requests
type WorkflowHandler struct {
	workflows *service.WorkflowService
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

// CreateWorkflow registers a new workflow definition
// POST /api/v1/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var req service.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.workflows.CreateWorkflow(c.Request().Context(), &req)
	if err != nil {
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		if strings.Contains(err.Error(), "already exists") {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, resp)
}

// PatchWorkflow applies an RFC 6902 patch, producing a new version
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	resp, err := h.workflows.PatchWorkflow(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// GetWorkflow returns the workflow with its current definition
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	wf, ver, err := h.workflows.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"workflow": wf,
		"version":  ver,
	})
}

// GetWorkflowVersion returns one stored revision
// GET /api/v1/workflows/:id/versions/:version
func (h *WorkflowHandler) GetWorkflowVersion(c echo.Context) error {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}

	ver, err := h.workflows.GetVersion(c.Request().Context(), c.Param("id"), version)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "version not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ver)
}
