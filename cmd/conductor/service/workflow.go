package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/repository"
	"github.com/flowmatic/conductor/common/validation"
)

// ErrInvalidPatch reports a malformed or inapplicable definition patch.
var ErrInvalidPatch = errors.New("invalid definition patch")

// WorkflowService owns the workflow catalog: definition validation,
// versioning and RFC 6902 patching.
type WorkflowService struct {
	catalog   repository.Catalog
	validator *graph.Validator
	patches   *validation.PatchValidator
	log       *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(catalog repository.Catalog, validator *graph.Validator, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		catalog:   catalog,
		validator: validator,
		patches:   validation.NewPatchValidator(),
		log:       log,
	}
}

// CreateWorkflowRequest is the input for registering a new workflow.
type CreateWorkflowRequest struct {
	Definition *models.WorkflowDefinition `json:"definition"`
	IsDraft    bool                       `json:"is_draft"`
}

// WorkflowResponse describes one stored workflow revision.
type WorkflowResponse struct {
	WorkflowID       string    `json:"workflow_id"`
	DisplayName      string    `json:"display_name,omitempty"`
	Version          int       `json:"version"`
	Checksum         string    `json:"checksum"`
	IsDraft          bool      `json:"is_draft"`
	UnreachableNodes []string  `json:"unreachable_nodes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateWorkflow validates a definition and stores it as version 1.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req *CreateWorkflowRequest) (*WorkflowResponse, error) {
	if req.Definition == nil || req.Definition.ID == "" {
		return nil, fmt.Errorf("definition with a workflow id is required")
	}
	def := req.Definition

	result, err := s.validator.Validate(def)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		WorkflowID:     def.ID,
		DisplayName:    def.DisplayName,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ver := &models.WorkflowVersion{
		WorkflowID: def.ID,
		Version:    1,
		Checksum:   def.Checksum(),
		Definition: def,
		IsDraft:    req.IsDraft,
		CreatedAt:  now,
	}
	if err := s.catalog.CreateWorkflow(ctx, wf, ver); err != nil {
		return nil, err
	}

	s.log.Info("workflow created",
		"workflow_id", def.ID,
		"version", 1,
		"checksum", ver.Checksum,
		"nodes", len(def.Nodes))

	return workflowResponse(wf.DisplayName, ver, result), nil
}

// PatchWorkflow applies an RFC 6902 patch to the current definition and
// stores the outcome as a new version. A patch that changes nothing
// returns the current version untouched.
func (s *WorkflowService) PatchWorkflow(ctx context.Context, workflowID string, patchDoc []byte) (*WorkflowResponse, error) {
	wf, err := s.catalog.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	current, err := s.catalog.GetCurrentVersion(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	var operations []map[string]any
	if err := json.Unmarshal(patchDoc, &operations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if err := s.patches.ValidateOperations(operations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	patch, err := jsonpatch.DecodePatch(patchDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	base, err := json.Marshal(current.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode current definition: %w", err)
	}
	patched, err := patch.Apply(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(patched, &def); err != nil {
		return nil, fmt.Errorf("%w: patched document is not a workflow definition: %v", ErrInvalidPatch, err)
	}
	if def.ID != workflowID {
		return nil, fmt.Errorf("%w: patch must not change the workflow id", ErrInvalidPatch)
	}

	result, err := s.validator.Validate(&def)
	if err != nil {
		return nil, err
	}

	checksum := def.Checksum()
	if checksum == current.Checksum {
		s.log.Info("patch is a no-op, keeping current version",
			"workflow_id", workflowID, "version", current.Version)
		return workflowResponse(wf.DisplayName, current, result), nil
	}

	next := &models.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    current.Version + 1,
		Checksum:   checksum,
		Definition: &def,
		IsDraft:    current.IsDraft,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.catalog.AddVersion(ctx, next); err != nil {
		return nil, err
	}

	s.log.Info("workflow patched",
		"workflow_id", workflowID,
		"version", next.Version,
		"checksum", checksum)

	return workflowResponse(wf.DisplayName, next, result), nil
}

// GetWorkflow returns the current revision of a workflow.
func (s *WorkflowService) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, *models.WorkflowVersion, error) {
	wf, err := s.catalog.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	ver, err := s.catalog.GetCurrentVersion(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	return wf, ver, nil
}

// GetVersion returns one stored revision.
func (s *WorkflowService) GetVersion(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	return s.catalog.GetVersion(ctx, workflowID, version)
}

func workflowResponse(displayName string, ver *models.WorkflowVersion, result *graph.Result) *WorkflowResponse {
	resp := &WorkflowResponse{
		WorkflowID:  ver.WorkflowID,
		DisplayName: displayName,
		Version:     ver.Version,
		Checksum:    ver.Checksum,
		IsDraft:     ver.IsDraft,
		CreatedAt:   ver.CreatedAt,
	}
	if result != nil {
		resp.UnreachableNodes = result.UnreachableNodes
	}
	return resp
}
