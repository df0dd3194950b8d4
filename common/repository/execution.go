package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flowmatic/conductor/common/db"
	"github.com/flowmatic/conductor/common/models"
)

// ExecutionRepository is the Postgres-backed Telemetry implementation.
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(database *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: database}
}

// CreateExecution inserts a Pending execution row, idempotent on
// (workflow_id, workflow_request_id).
func (r *ExecutionRepository) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (uuid.UUID, bool, error) {
	query := `
		INSERT INTO workflow_executions
			(id, workflow_id, workflow_version, workflow_request_id, status,
			 trigger_payload, vars, start_time, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id, workflow_request_id) DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := r.db.QueryRow(
		ctx,
		query,
		exec.ID,
		exec.WorkflowID,
		exec.WorkflowVersion,
		exec.WorkflowRequestID,
		exec.Status,
		exec.TriggerPayload,
		exec.Vars,
		exec.StartTime,
		exec.CorrelationID,
	).Scan(&id)

	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("failed to create execution: %w", err)
	}

	// Conflict path: return the existing row's id (idempotent accept).
	existing := `
		SELECT id FROM workflow_executions
		WHERE workflow_id = $1 AND workflow_request_id = $2
	`
	err = r.db.QueryRow(ctx, existing, exec.WorkflowID, exec.WorkflowRequestID).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to resolve existing execution: %w", err)
	}

	return id, false, nil
}

// UpdateExecutionStatus applies a monotonic lifecycle transition.
func (r *ExecutionRepository) UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, endTime *time.Time, snapshot map[string]any) error {
	query := `
		UPDATE workflow_executions
		SET status = $2,
		    end_time = COALESCE($3, end_time),
		    context_snapshot = COALESCE($4, context_snapshot)
		WHERE id = $1
		  AND status = ANY($5)
	`

	var allowed []string
	for _, from := range []models.ExecutionStatus{
		models.ExecutionPending,
		models.ExecutionRunning,
	} {
		if from.CanTransitionTo(status) {
			allowed = append(allowed, string(from))
		}
	}

	tag, err := r.db.Exec(ctx, query, id, status, endTime, snapshot, allowed)
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var current models.ExecutionStatus
		err := r.db.QueryRow(ctx, `SELECT status FROM workflow_executions WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read execution status: %w", err)
		}
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, current, status)
	}

	return nil
}

// AppendAction inserts one action-execution row.
func (r *ExecutionRepository) AppendAction(ctx context.Context, row *models.ActionExecution) error {
	query := `
		INSERT INTO action_executions
			(id, workflow_execution_id, node_id, action_type, status, attempt,
			 retry_count, parameters, outputs, error, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		row.ID,
		row.WorkflowExecutionID,
		row.NodeID,
		row.ActionType,
		row.Status,
		row.Attempt,
		row.RetryCount,
		row.Parameters,
		row.Outputs,
		row.Error,
		row.StartTime,
		row.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to append action row: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution by its ID
func (r *ExecutionRepository) GetExecution(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, workflow_request_id, status,
		       trigger_payload, vars, start_time, end_time, correlation_id,
		       context_snapshot
		FROM workflow_executions
		WHERE id = $1
	`

	exec := &models.WorkflowExecution{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.WorkflowVersion,
		&exec.WorkflowRequestID,
		&exec.Status,
		&exec.TriggerPayload,
		&exec.Vars,
		&exec.StartTime,
		&exec.EndTime,
		&exec.CorrelationID,
		&exec.ContextSnapshot,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return exec, nil
}

// ListActions returns the action rows of an execution ordered by start time
func (r *ExecutionRepository) ListActions(ctx context.Context, executionID uuid.UUID) ([]*models.ActionExecution, error) {
	query := `
		SELECT id, workflow_execution_id, node_id, action_type, status, attempt,
		       retry_count, parameters, outputs, error, start_time, end_time
		FROM action_executions
		WHERE workflow_execution_id = $1
		ORDER BY start_time ASC
	`

	rows, err := r.db.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action rows: %w", err)
	}
	defer rows.Close()

	var actions []*models.ActionExecution
	for rows.Next() {
		row := &models.ActionExecution{}
		err := rows.Scan(
			&row.ID,
			&row.WorkflowExecutionID,
			&row.NodeID,
			&row.ActionType,
			&row.Status,
			&row.Attempt,
			&row.RetryCount,
			&row.Parameters,
			&row.Outputs,
			&row.Error,
			&row.StartTime,
			&row.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action rows: %w", err)
	}

	return actions, nil
}
