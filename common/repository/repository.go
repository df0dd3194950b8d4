package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/common/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBackwardTransition is returned when an execution status update would
// move the lifecycle backward or out of a terminal state.
var ErrBackwardTransition = errors.New("backward status transition rejected")

// Telemetry persists per-execution and per-action lifecycle rows.
// The conductor depends only on this interface; pgx and in-memory
// implementations both satisfy it.
type Telemetry interface {
	// CreateExecution inserts a Pending execution row. The insert is
	// idempotent on (workflow_id, workflow_request_id): on conflict the
	// existing row's id is returned with created=false.
	CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (id uuid.UUID, created bool, err error)

	// UpdateExecutionStatus applies a monotonic lifecycle transition.
	// endTime and snapshot are written only when non-nil.
	UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, endTime *time.Time, snapshot map[string]any) error

	// AppendAction inserts one action-execution row.
	AppendAction(ctx context.Context, row *models.ActionExecution) error

	// GetExecution returns the full execution record or ErrNotFound.
	GetExecution(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error)

	// ListActions returns the action rows of an execution ordered by start time.
	ListActions(ctx context.Context, executionID uuid.UUID) ([]*models.ActionExecution, error)
}

// Catalog stores workflow definitions with versioning.
type Catalog interface {
	// CreateWorkflow stores a new workflow with its version-1 definition.
	CreateWorkflow(ctx context.Context, wf *models.Workflow, ver *models.WorkflowVersion) error

	// AddVersion stores a new definition revision and bumps current_version.
	AddVersion(ctx context.Context, ver *models.WorkflowVersion) error

	// GetWorkflow returns the workflow row or ErrNotFound.
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)

	// GetVersion returns one stored revision or ErrNotFound.
	GetVersion(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error)

	// GetCurrentVersion returns the workflow's current revision or ErrNotFound.
	GetCurrentVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
}

// ActionCatalog persists registered action metadata.
type ActionCatalog interface {
	UpsertAction(ctx context.Context, meta *models.ActionMetadata) error
	ListActions(ctx context.Context) ([]*models.ActionMetadata, error)
}
