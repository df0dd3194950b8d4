package service

import (
	"context"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/repository"
)

// ActionService manages the connector action catalog: registration,
// persistence and rehydration of the handler registry on startup.
type ActionService struct {
	registry        *registry.Registry
	catalog         repository.ActionCatalog
	validateSchemas bool
	log             *logger.Logger
}

// NewActionService creates a new action service
func NewActionService(reg *registry.Registry, catalog repository.ActionCatalog, validateSchemas bool, log *logger.Logger) *ActionService {
	return &ActionService{
		registry:        reg,
		catalog:         catalog,
		validateSchemas: validateSchemas,
		log:             log,
	}
}

// RegisterConnectorRequest is a connector announcing its action list in
// one batch.
type RegisterConnectorRequest struct {
	ConnectorID string                   `json:"connectorId"`
	Actions     []*RegisterActionRequest `json:"actions"`
}

// RegisterActionRequest describes one connector action.
type RegisterActionRequest struct {
	ActionType      string         `json:"actionType"`
	DisplayName     string         `json:"displayName,omitempty"`
	Description     string         `json:"description,omitempty"`
	ConnectorID     string         `json:"connectorId,omitempty"`
	EndpointURL     string         `json:"endpointUrl"`
	ParameterSchema map[string]any `json:"parameterSchema,omitempty"`
	OutputSchema    map[string]any `json:"outputSchema,omitempty"`
	RequiresAuth    bool           `json:"requiresAuth"`
	IsEnabled       *bool          `json:"isEnabled,omitempty"` // omitted means enabled
}

// RegisterConnector registers a connector's full action list. Entries
// inherit the envelope's connector id; any invalid entry rejects the
// whole batch before anything persists.
func (s *ActionService) RegisterConnector(ctx context.Context, req *RegisterConnectorRequest) ([]*models.ActionMetadata, error) {
	if len(req.Actions) == 0 {
		return nil, fmt.Errorf("at least one action is required")
	}
	for _, action := range req.Actions {
		if action.ConnectorID == "" {
			action.ConnectorID = req.ConnectorID
		}
		if err := s.checkAction(action); err != nil {
			return nil, err
		}
	}

	metas := make([]*models.ActionMetadata, 0, len(req.Actions))
	for _, action := range req.Actions {
		meta, err := s.RegisterAction(ctx, action)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *ActionService) checkAction(req *RegisterActionRequest) error {
	if req.ActionType == "" {
		return fmt.Errorf("actionType is required")
	}
	if req.EndpointURL == "" {
		return fmt.Errorf("endpointUrl is required for %s", req.ActionType)
	}
	if s.validateSchemas {
		if err := checkSchema(req.ActionType, "parameterSchema", req.ParameterSchema); err != nil {
			return err
		}
		if err := checkSchema(req.ActionType, "outputSchema", req.OutputSchema); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAction persists connector action metadata and wires a remote
// handler for it. Re-registering an action type replaces its endpoint.
func (s *ActionService) RegisterAction(ctx context.Context, req *RegisterActionRequest) (*models.ActionMetadata, error) {
	if err := s.checkAction(req); err != nil {
		return nil, err
	}

	meta := &models.ActionMetadata{
		ActionType:      req.ActionType,
		DisplayName:     req.DisplayName,
		Description:     req.Description,
		ConnectorID:     req.ConnectorID,
		EndpointURL:     req.EndpointURL,
		ParameterSchema: req.ParameterSchema,
		OutputSchema:    req.OutputSchema,
		RequiresAuth:    req.RequiresAuth,
		IsEnabled:       req.IsEnabled == nil || *req.IsEnabled,
		RegisteredAt:    time.Now().UTC(),
	}

	if err := s.catalog.UpsertAction(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to persist action %s: %w", meta.ActionType, err)
	}
	s.registry.RegisterWithMetadata(registry.NewRemoteHandler(meta.ActionType, meta.EndpointURL), meta)

	s.log.Info("action registered",
		"action_type", meta.ActionType,
		"connector_id", meta.ConnectorID,
		"endpoint", meta.EndpointURL,
		"enabled", meta.IsEnabled)
	return meta, nil
}

// ListActions returns the persisted action catalog.
func (s *ActionService) ListActions(ctx context.Context) ([]*models.ActionMetadata, error) {
	return s.catalog.ListActions(ctx)
}

// LoadFromCatalog rehydrates the handler registry from persisted action
// metadata, typically at startup.
func (s *ActionService) LoadFromCatalog(ctx context.Context) error {
	metas, err := s.catalog.ListActions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load action catalog: %w", err)
	}

	loaded := 0
	for _, meta := range metas {
		if s.validateSchemas {
			if err := checkSchema(meta.ActionType, "parameterSchema", meta.ParameterSchema); err != nil {
				s.log.Error("skipping action with broken schema",
					"action_type", meta.ActionType, "error", err)
				continue
			}
		}
		s.registry.RegisterWithMetadata(registry.NewRemoteHandler(meta.ActionType, meta.EndpointURL), meta)
		loaded++
	}

	s.log.Info("action registry loaded", "actions", loaded, "catalog_size", len(metas))
	return nil
}

// checkSchema compiles a declared JSON Schema to catch broken schemas at
// registration time instead of first dispatch.
func checkSchema(actionType, field string, doc map[string]any) error {
	if len(doc) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	resource := fmt.Sprintf("conductor://actions/%s/%s.json", actionType, field)
	if err := c.AddResource(resource, doc); err != nil {
		return fmt.Errorf("invalid %s for %s: %w", field, actionType, err)
	}
	if _, err := c.Compile(resource); err != nil {
		return fmt.Errorf("invalid %s for %s: %w", field, actionType, err)
	}
	return nil
}
