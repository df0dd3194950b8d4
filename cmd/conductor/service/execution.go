package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/cmd/conductor/engine"
	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/common/cache"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/queue"
	"github.com/flowmatic/conductor/common/redis"
	"github.com/flowmatic/conductor/common/repository"
)

// ExecutionTopic is the queue topic carrying accepted submissions to the
// run loop.
const ExecutionTopic = "conductor.executions"

// submitLockTTL bounds the Redis fast-path dedup window. The durable
// uniqueness guarantee is the database constraint; Redis only short-circuits
// the common case.
const submitLockTTL = 24 * time.Hour

// definitionCacheTTL bounds how long a pinned (immutable) version stays
// cached between runs.
const definitionCacheTTL = 10 * time.Minute

// ErrDraftExecution is returned when a draft version is submitted while
// draft execution is disabled.
var ErrDraftExecution = errors.New("workflow version is a draft")

// ExecutionService accepts submissions, deduplicates them and feeds the
// engine run loop.
type ExecutionService struct {
	telemetry  repository.Telemetry
	catalog    repository.Catalog
	engine     *engine.Engine
	validator  *graph.Validator
	queue      queue.Queue
	redis      *redis.Client // optional fast-path dedup
	cache      cache.Cache   // optional pinned-version cache
	allowDraft bool
	log        *logger.Logger
}

// NewExecutionService creates a new execution service. The Redis client
// and cache may be nil; dedup then relies on the database constraint
// alone and every run loads its definition from the catalog.
func NewExecutionService(
	telemetry repository.Telemetry,
	catalog repository.Catalog,
	eng *engine.Engine,
	validator *graph.Validator,
	q queue.Queue,
	redisClient *redis.Client,
	defCache cache.Cache,
	allowDraft bool,
	log *logger.Logger,
) *ExecutionService {
	return &ExecutionService{
		telemetry:  telemetry,
		catalog:    catalog,
		engine:     eng,
		validator:  validator,
		queue:      q,
		redis:      redisClient,
		cache:      defCache,
		allowDraft: allowDraft,
		log:        log,
	}
}

// SubmitRequest is one execution submission.
type SubmitRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	RequestID      string         `json:"request_id"`
	Version        int            `json:"version,omitempty"` // 0 means current
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
}

// SubmitResponse acknowledges an accepted (or deduplicated) submission.
type SubmitResponse struct {
	ExecutionID  uuid.UUID              `json:"execution_id"`
	WorkflowID   string                 `json:"workflow_id"`
	Version      int                    `json:"version"`
	Status       models.ExecutionStatus `json:"status"`
	StatusURL    string                 `json:"status_url"`
	Deduplicated bool                   `json:"deduplicated"`
}

func statusURL(id uuid.UUID) string {
	return fmt.Sprintf("/api/v1/executions/%s", id)
}

// ExecutionDetail is the full per-execution record with its action rows.
type ExecutionDetail struct {
	Execution *models.WorkflowExecution `json:"execution"`
	Actions   []*models.ActionExecution `json:"actions"`
}

// runMessage is the queue payload between submit and the run loop.
type runMessage struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Version     int       `json:"version"`
}

// Submit validates, deduplicates and enqueues one execution. Submissions
// are idempotent on (workflowId, requestId): a repeat returns the original
// execution id without scheduling anything.
func (s *ExecutionService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_id is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ver, err := s.resolveVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	if ver.IsDraft && !s.allowDraft {
		return nil, fmt.Errorf("%w: %s version %d", ErrDraftExecution, req.WorkflowID, ver.Version)
	}
	// A definition that validated at creation time still revalidates here:
	// submission pins the version, and rejecting a bad graph before any
	// telemetry row exists is the cheap place to do it.
	if _, err := s.validator.Validate(ver.Definition); err != nil {
		return nil, err
	}

	if resp, ok := s.dedupFastPath(ctx, req, ver.Version); ok {
		return resp, nil
	}

	exec := &models.WorkflowExecution{
		ID:                uuid.New(),
		WorkflowID:        req.WorkflowID,
		WorkflowVersion:   ver.Version,
		WorkflowRequestID: req.RequestID,
		Status:            models.ExecutionPending,
		TriggerPayload:    req.TriggerPayload,
		Vars:              req.Vars,
		StartTime:         time.Now().UTC(),
		CorrelationID:     req.CorrelationID,
	}

	id, created, err := s.telemetry.CreateExecution(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	if !created {
		existing, err := s.telemetry.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		s.log.Info("duplicate submission deduplicated",
			"workflow_id", req.WorkflowID,
			"request_id", req.RequestID,
			"execution_id", id)
		return &SubmitResponse{
			ExecutionID:  id,
			WorkflowID:   existing.WorkflowID,
			Version:      existing.WorkflowVersion,
			Status:       existing.Status,
			StatusURL:    statusURL(id),
			Deduplicated: true,
		}, nil
	}

	s.recordSubmitLock(ctx, req, id)

	payload, err := json.Marshal(runMessage{
		ExecutionID: id,
		WorkflowID:  req.WorkflowID,
		Version:     ver.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode run message: %w", err)
	}
	if err := s.queue.Publish(ctx, ExecutionTopic, id.String(), payload); err != nil {
		return nil, fmt.Errorf("failed to enqueue execution: %w", err)
	}

	s.log.Info("execution accepted",
		"execution_id", id,
		"workflow_id", req.WorkflowID,
		"version", ver.Version,
		"request_id", req.RequestID)

	return &SubmitResponse{
		ExecutionID: id,
		WorkflowID:  req.WorkflowID,
		Version:     ver.Version,
		Status:      models.ExecutionPending,
		StatusURL:   statusURL(id),
	}, nil
}

func (s *ExecutionService) resolveVersion(ctx context.Context, req *SubmitRequest) (*models.WorkflowVersion, error) {
	if req.Version > 0 {
		return s.loadVersion(ctx, req.WorkflowID, req.Version)
	}
	return s.catalog.GetCurrentVersion(ctx, req.WorkflowID)
}

func versionCacheKey(workflowID string, version int) string {
	return fmt.Sprintf("conductor:def:%s:%d", workflowID, version)
}

// loadVersion fetches one stored revision, caching it between calls.
// Only pinned versions pass through here: a stored revision is immutable,
// so a stale entry can never serve the wrong definition.
func (s *ExecutionService) loadVersion(ctx context.Context, workflowID string, version int) (*models.WorkflowVersion, error) {
	key := versionCacheKey(workflowID, version)
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
			var ver models.WorkflowVersion
			if err := json.Unmarshal(raw, &ver); err == nil {
				return &ver, nil
			}
		}
	}

	ver, err := s.catalog.GetVersion(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(ver); err == nil {
			if err := s.cache.Set(ctx, key, raw, definitionCacheTTL); err != nil {
				s.log.Warn("failed to cache workflow version",
					"workflow_id", workflowID, "version", version, "error", err)
			}
		}
	}
	return ver, nil
}

func submitLockKey(workflowID, requestID string) string {
	return fmt.Sprintf("conductor:submit:%s:%s", workflowID, requestID)
}

// dedupFastPath answers a repeat submission from Redis when possible.
// Any Redis trouble falls through to the database constraint.
func (s *ExecutionService) dedupFastPath(ctx context.Context, req *SubmitRequest, version int) (*SubmitResponse, bool) {
	if s.redis == nil {
		return nil, false
	}

	val, found, err := s.redis.Get(ctx, submitLockKey(req.WorkflowID, req.RequestID))
	if err != nil || !found {
		return nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return nil, false
	}
	existing, err := s.telemetry.GetExecution(ctx, id)
	if err != nil {
		return nil, false
	}

	s.log.Info("duplicate submission deduplicated via redis",
		"workflow_id", req.WorkflowID,
		"request_id", req.RequestID,
		"execution_id", id)
	return &SubmitResponse{
		ExecutionID:  id,
		WorkflowID:   existing.WorkflowID,
		Version:      existing.WorkflowVersion,
		Status:       existing.Status,
		StatusURL:    statusURL(id),
		Deduplicated: true,
	}, true
}

func (s *ExecutionService) recordSubmitLock(ctx context.Context, req *SubmitRequest, id uuid.UUID) {
	if s.redis == nil {
		return
	}
	if _, err := s.redis.SetNX(ctx, submitLockKey(req.WorkflowID, req.RequestID), id.String(), submitLockTTL); err != nil {
		s.log.Warn("failed to record submit lock, relying on db constraint",
			"workflow_id", req.WorkflowID, "request_id", req.RequestID, "error", err)
	}
}

// GetExecution returns the execution record with its action rows.
func (s *ExecutionService) GetExecution(ctx context.Context, id uuid.UUID) (*ExecutionDetail, error) {
	exec, err := s.telemetry.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	actions, err := s.telemetry.ListActions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ExecutionDetail{Execution: exec, Actions: actions}, nil
}

// Start subscribes the run loop to the submission topic. Each message
// drives one engine run to a terminal status.
func (s *ExecutionService) Start(ctx context.Context) error {
	return s.queue.Subscribe(ctx, ExecutionTopic, func(ctx context.Context, key string, value []byte) error {
		var msg runMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return fmt.Errorf("malformed run message %q: %w", key, err)
		}
		return s.runOne(ctx, &msg)
	})
}

func (s *ExecutionService) runOne(ctx context.Context, msg *runMessage) error {
	exec, err := s.telemetry.GetExecution(ctx, msg.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", msg.ExecutionID, err)
	}
	if exec.Status != models.ExecutionPending {
		s.log.Warn("skipping non-pending execution",
			"execution_id", exec.ID, "status", exec.Status)
		return nil
	}

	ver, err := s.loadVersion(ctx, msg.WorkflowID, msg.Version)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s version %d: %w", msg.WorkflowID, msg.Version, err)
	}

	if _, err := s.engine.Run(ctx, exec, ver.Definition); err != nil {
		return fmt.Errorf("run %s did not reach a terminal status: %w", exec.ID, err)
	}
	return nil
}
