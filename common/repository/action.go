package repository

import (
	"context"
	"fmt"

	"github.com/flowmatic/conductor/common/db"
	"github.com/flowmatic/conductor/common/models"
)

// ActionRepository persists registered action metadata in Postgres.
type ActionRepository struct {
	db *db.DB
}

// NewActionRepository creates a new action repository
func NewActionRepository(database *db.DB) *ActionRepository {
	return &ActionRepository{db: database}
}

// UpsertAction stores or refreshes the metadata of one action type.
func (r *ActionRepository) UpsertAction(ctx context.Context, meta *models.ActionMetadata) error {
	query := `
		INSERT INTO action_registrations
			(action_type, display_name, description, connector_id, endpoint_url,
			 parameter_schema, output_schema, requires_auth, is_enabled, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (action_type) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			connector_id = EXCLUDED.connector_id,
			endpoint_url = EXCLUDED.endpoint_url,
			parameter_schema = EXCLUDED.parameter_schema,
			output_schema = EXCLUDED.output_schema,
			requires_auth = EXCLUDED.requires_auth,
			is_enabled = EXCLUDED.is_enabled,
			registered_at = NOW()
	`

	_, err := r.db.Exec(
		ctx,
		query,
		meta.ActionType,
		meta.DisplayName,
		meta.Description,
		meta.ConnectorID,
		meta.EndpointURL,
		meta.ParameterSchema,
		meta.OutputSchema,
		meta.RequiresAuth,
		meta.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert action registration: %w", err)
	}

	return nil
}

// ListActions returns all registered action metadata ordered by type.
func (r *ActionRepository) ListActions(ctx context.Context) ([]*models.ActionMetadata, error) {
	query := `
		SELECT action_type, display_name, description, connector_id, endpoint_url,
		       parameter_schema, output_schema, requires_auth, is_enabled, registered_at
		FROM action_registrations
		ORDER BY action_type ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list action registrations: %w", err)
	}
	defer rows.Close()

	var actions []*models.ActionMetadata
	for rows.Next() {
		meta := &models.ActionMetadata{}
		err := rows.Scan(
			&meta.ActionType,
			&meta.DisplayName,
			&meta.Description,
			&meta.ConnectorID,
			&meta.EndpointURL,
			&meta.ParameterSchema,
			&meta.OutputSchema,
			&meta.RequiresAuth,
			&meta.IsEnabled,
			&meta.RegisteredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action registration: %w", err)
		}
		actions = append(actions, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action registrations: %w", err)
	}

	return actions, nil
}
