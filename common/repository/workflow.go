package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowmatic/conductor/common/db"
	"github.com/flowmatic/conductor/common/models"
)

// WorkflowRepository is the Postgres-backed Catalog implementation.
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// CreateWorkflow stores a new workflow with its version-1 definition.
// Both rows commit in one transaction.
func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, wf *models.Workflow, ver *models.WorkflowVersion) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflows (workflow_id, display_name, current_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, wf.WorkflowID, wf.DisplayName, wf.CurrentVersion, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_definitions (workflow_id, version, checksum, definition, is_draft, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ver.WorkflowID, ver.Version, ver.Checksum, ver.Definition, ver.IsDraft, ver.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store definition: %w", err)
	}

	return tx.Commit(ctx)
}

// AddVersion stores a new definition revision and bumps current_version.
func (r *WorkflowRepository) AddVersion(ctx context.Context, ver *models.WorkflowVersion) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_definitions (workflow_id, version, checksum, definition, is_draft, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ver.WorkflowID, ver.Version, ver.Checksum, ver.Definition, ver.IsDraft, ver.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store definition: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE workflows
		SET current_version = $2, updated_at = NOW()
		WHERE workflow_id = $1 AND current_version < $2
	`, ver.WorkflowID, ver.Version)
	if err != nil {
		return fmt.Errorf("failed to bump current version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %d is not ahead of current for workflow %s", ver.Version, ver.WorkflowID)
	}

	return tx.Commit(ctx)
}

// GetWorkflow returns the workflow row
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	query := `
		SELECT workflow_id, display_name, current_version, created_at, updated_at
		FROM workflows
		WHERE workflow_id = $1
	`

	wf := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&wf.WorkflowID,
		&wf.DisplayName,
		&wf.CurrentVersion,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// GetVersion returns one stored revision
func (r *WorkflowRepository) GetVersion(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version, checksum, definition, is_draft, created_at
		FROM workflow_definitions
		WHERE workflow_id = $1 AND version = $2
	`

	ver := &models.WorkflowVersion{}
	err := r.db.QueryRow(ctx, query, workflowID, version).Scan(
		&ver.WorkflowID,
		&ver.Version,
		&ver.Checksum,
		&ver.Definition,
		&ver.IsDraft,
		&ver.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition version: %w", err)
	}

	return ver, nil
}

// GetCurrentVersion returns the workflow's current revision
func (r *WorkflowRepository) GetCurrentVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `
		SELECT d.workflow_id, d.version, d.checksum, d.definition, d.is_draft, d.created_at
		FROM workflow_definitions d
		JOIN workflows w ON w.workflow_id = d.workflow_id AND w.current_version = d.version
		WHERE d.workflow_id = $1
	`

	ver := &models.WorkflowVersion{}
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&ver.WorkflowID,
		&ver.Version,
		&ver.Checksum,
		&ver.Definition,
		&ver.IsDraft,
		&ver.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current definition: %w", err)
	}

	return ver, nil
}
