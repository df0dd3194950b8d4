// Package routes binds the HTTP surface to handlers.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/cmd/conductor/handlers"
)

// Register wires all conductor routes onto the echo instance. submitMW
// guards the execution submit route only; the rest of the surface stays
// unthrottled.
func Register(
	e *echo.Echo,
	workflows *handlers.WorkflowHandler,
	executions *handlers.ExecutionHandler,
	actions *handlers.ActionHandler,
	health *handlers.HealthHandler,
	submitMW ...echo.MiddlewareFunc,
) {
	e.GET("/health", health.Health)

	wf := e.Group("/api/v1/workflows")
	{
		wf.POST("", workflows.CreateWorkflow)                    // POST  /api/v1/workflows
		wf.GET("/:id", workflows.GetWorkflow)                    // GET   /api/v1/workflows/:id
		wf.PATCH("/:id", workflows.PatchWorkflow)                // PATCH /api/v1/workflows/:id
		wf.GET("/:id/versions/:version", workflows.GetWorkflowVersion)
		wf.POST("/:id/executions", executions.SubmitExecution, submitMW...) // POST  /api/v1/workflows/:id/executions
	}

	e.GET("/api/v1/executions/:id", executions.GetExecution)

	admin := e.Group("/api/v1/admin/actions")
	{
		admin.POST("/register", actions.RegisterAction)
		admin.GET("", actions.ListActions)
	}
}
