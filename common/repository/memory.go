package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/common/models"
)

// MemoryTelemetry is an in-memory Telemetry implementation.
// Used by engine tests and by deployments that run without Postgres.
type MemoryTelemetry struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*models.WorkflowExecution
	byRequest  map[string]uuid.UUID
	actions    map[uuid.UUID][]*models.ActionExecution
}

// NewMemoryTelemetry creates an empty in-memory telemetry store.
func NewMemoryTelemetry() *MemoryTelemetry {
	return &MemoryTelemetry{
		executions: make(map[uuid.UUID]*models.WorkflowExecution),
		byRequest:  make(map[string]uuid.UUID),
		actions:    make(map[uuid.UUID][]*models.ActionExecution),
	}
}

func requestKey(workflowID, requestID string) string {
	return workflowID + "\x00" + requestID
}

// CreateExecution inserts a Pending row, idempotent on (workflowID, requestID).
func (m *MemoryTelemetry) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestKey(exec.WorkflowID, exec.WorkflowRequestID)
	if existing, ok := m.byRequest[key]; ok {
		return existing, false, nil
	}

	cp := *exec
	m.executions[exec.ID] = &cp
	m.byRequest[key] = exec.ID
	return exec.ID, true, nil
}

// UpdateExecutionStatus applies a monotonic lifecycle transition.
func (m *MemoryTelemetry) UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, endTime *time.Time, snapshot map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	if !exec.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, exec.Status, status)
	}

	exec.Status = status
	if endTime != nil {
		exec.EndTime = endTime
	}
	if snapshot != nil {
		exec.ContextSnapshot = snapshot
	}
	return nil
}

// AppendAction inserts one action row.
func (m *MemoryTelemetry) AppendAction(ctx context.Context, row *models.ActionExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *row
	m.actions[row.WorkflowExecutionID] = append(m.actions[row.WorkflowExecutionID], &cp)
	return nil
}

// GetExecution returns the execution record or ErrNotFound.
func (m *MemoryTelemetry) GetExecution(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *exec
	return &cp, nil
}

// ListActions returns action rows ordered by start time.
func (m *MemoryTelemetry) ListActions(ctx context.Context, executionID uuid.UUID) ([]*models.ActionExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.actions[executionID]
	out := make([]*models.ActionExecution, len(rows))
	for i, row := range rows {
		cp := *row
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// MemoryActionCatalog is an in-memory ActionCatalog implementation.
type MemoryActionCatalog struct {
	mu      sync.Mutex
	actions map[string]*models.ActionMetadata
}

// NewMemoryActionCatalog creates an empty in-memory action catalog.
func NewMemoryActionCatalog() *MemoryActionCatalog {
	return &MemoryActionCatalog{actions: make(map[string]*models.ActionMetadata)}
}

// UpsertAction stores or replaces one action's metadata.
func (m *MemoryActionCatalog) UpsertAction(ctx context.Context, meta *models.ActionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *meta
	m.actions[meta.ActionType] = &cp
	return nil
}

// ListActions returns all registered actions sorted by type.
func (m *MemoryActionCatalog) ListActions(ctx context.Context) ([]*models.ActionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.ActionMetadata, 0, len(m.actions))
	for _, meta := range m.actions {
		cp := *meta
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionType < out[j].ActionType })
	return out, nil
}

// MemoryCatalog is an in-memory Catalog implementation for tests.
type MemoryCatalog struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	versions  map[string]map[int]*models.WorkflowVersion
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		workflows: make(map[string]*models.Workflow),
		versions:  make(map[string]map[int]*models.WorkflowVersion),
	}
}

// CreateWorkflow stores a new workflow with its version-1 definition.
func (m *MemoryCatalog) CreateWorkflow(ctx context.Context, wf *models.Workflow, ver *models.WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[wf.WorkflowID]; ok {
		return fmt.Errorf("workflow already exists: %s", wf.WorkflowID)
	}

	wfCopy := *wf
	verCopy := *ver
	m.workflows[wf.WorkflowID] = &wfCopy
	m.versions[wf.WorkflowID] = map[int]*models.WorkflowVersion{ver.Version: &verCopy}
	return nil
}

// AddVersion stores a new revision and bumps current_version.
func (m *MemoryCatalog) AddVersion(ctx context.Context, ver *models.WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[ver.WorkflowID]
	if !ok {
		return ErrNotFound
	}
	if ver.Version <= wf.CurrentVersion {
		return fmt.Errorf("version %d is not ahead of current for workflow %s", ver.Version, ver.WorkflowID)
	}

	verCopy := *ver
	m.versions[ver.WorkflowID][ver.Version] = &verCopy
	wf.CurrentVersion = ver.Version
	wf.UpdatedAt = time.Now()
	return nil
}

// GetWorkflow returns the workflow row or ErrNotFound.
func (m *MemoryCatalog) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

// GetVersion returns one stored revision or ErrNotFound.
func (m *MemoryCatalog) GetVersion(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ver, ok := m.versions[workflowID][version]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ver
	return &cp, nil
}

// GetCurrentVersion returns the current revision or ErrNotFound.
func (m *MemoryCatalog) GetCurrentVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	ver, ok := m.versions[workflowID][wf.CurrentVersion]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ver
	return &cp, nil
}
