// Package engine runs one workflow execution: it schedules ready nodes
// over a bounded worker pool, retries transient action failures, routes
// completions along gated edges and persists telemetry as it goes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/cmd/conductor/condition"
	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/cmd/conductor/template"
	"github.com/flowmatic/conductor/cmd/conductor/validation"
	"github.com/flowmatic/conductor/common/config"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/repository"
	"github.com/flowmatic/conductor/common/retry"
)

const (
	persistAttempts   = 3
	persistRetryDelay = 500 * time.Millisecond
)

// Logger is the minimal logging surface the engine needs; satisfied by
// common/logger.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Engine executes workflow definitions. Safe for concurrent Run calls:
// all per-execution state lives in the run, not the engine.
type Engine struct {
	registry   *registry.Registry
	telemetry  repository.Telemetry
	templates  *template.Engine
	conditions *condition.Evaluator
	params     validation.ParameterValidator
	policy     retry.Policy
	cfg        config.OrchestrationConfig
	log        Logger
	events     EventPublisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRetryPolicy overrides the default per-action retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithOrchestration sets parallelism and timeout bounds.
func WithOrchestration(cfg config.OrchestrationConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithParameterValidator sets the pre-dispatch parameter validator.
func WithParameterValidator(v validation.ParameterValidator) Option {
	return func(e *Engine) { e.params = v }
}

// WithEventPublisher enables lifecycle event publication.
func WithEventPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// New creates an engine over a handler registry and a telemetry store.
func New(reg *registry.Registry, telemetry repository.Telemetry, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		telemetry:  telemetry,
		templates:  template.NewEngine(),
		conditions: condition.NewEvaluator(),
		params:     validation.AcceptAll{},
		policy:     retry.Default(),
		cfg: config.OrchestrationConfig{
			MaxParallelActions:     10,
			DefaultActionTimeout:   5 * time.Minute,
			DefaultWorkflowTimeout: time.Hour,
		},
		log: noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.MaxParallelActions < 1 {
		e.cfg.MaxParallelActions = 1
	}
	return e
}

// Run drives one execution from Running to a terminal status. The caller
// provides a persisted Pending execution row and its resolved definition;
// Run returns the terminal status it recorded.
//
// Persistence failures abort the run: after three write attempts the
// execution lands Failed rather than continuing with unrecorded steps.
func (e *Engine) Run(ctx context.Context, exec *models.WorkflowExecution, def *models.WorkflowDefinition) (models.ExecutionStatus, error) {
	runCtx := ctx
	if e.cfg.DefaultWorkflowTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.DefaultWorkflowTimeout)
		defer cancel()
	}
	// Telemetry writes must land even after the workflow deadline fires.
	persistCtx := context.WithoutCancel(ctx)

	if err := e.persistStatus(persistCtx, exec.ID, models.ExecutionRunning, nil, nil); err != nil {
		e.log.Error("failed to mark execution running", "execution_id", exec.ID, "error", err)
		return exec.Status, err
	}
	exec.Status = models.ExecutionRunning
	e.publishEvent(persistCtx, &Event{
		Type:        EventExecutionStarted,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      string(models.ExecutionRunning),
	})
	e.log.Info("execution started",
		"execution_id", exec.ID,
		"workflow_id", exec.WorkflowID,
		"workflow_version", exec.WorkflowVersion)

	r := newRun(e, exec, def, persistCtx)
	status := r.loop(runCtx)

	end := time.Now().UTC()
	snapshot := r.outputs.finalSnapshot()
	if err := e.persistStatus(persistCtx, exec.ID, status, &end, snapshot); err != nil {
		e.log.Error("failed to record terminal status",
			"execution_id", exec.ID, "status", status, "error", err)
		return status, err
	}
	exec.Status = status
	exec.EndTime = &end
	exec.ContextSnapshot = snapshot

	e.publishEvent(persistCtx, &Event{
		Type:        EventExecutionFinished,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      string(status),
	})
	e.log.Info("execution finished", "execution_id", exec.ID, "status", status)
	return status, nil
}

// persistStatus applies a lifecycle transition, retrying transient store
// failures a few times before giving up.
func (e *Engine) persistStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, endTime *time.Time, snapshot map[string]any) error {
	var err error
	for i := 1; i <= persistAttempts; i++ {
		if err = e.telemetry.UpdateExecutionStatus(ctx, id, status, endTime, snapshot); err == nil {
			return nil
		}
		e.log.Warn("execution status write failed",
			"execution_id", id, "status", status, "attempt", i, "error", err)
		if i < persistAttempts {
			time.Sleep(persistRetryDelay)
		}
	}
	return fmt.Errorf("telemetry unavailable for execution %s: %w", id, err)
}

// persistAction appends one final action row with the same retry budget.
func (e *Engine) persistAction(ctx context.Context, row *models.ActionExecution) error {
	var err error
	for i := 1; i <= persistAttempts; i++ {
		if err = e.telemetry.AppendAction(ctx, row); err == nil {
			return nil
		}
		e.log.Warn("action telemetry write failed",
			"execution_id", row.WorkflowExecutionID,
			"node_id", row.NodeID, "attempt", i, "error", err)
		if i < persistAttempts {
			time.Sleep(persistRetryDelay)
		}
	}
	return fmt.Errorf("telemetry unavailable for node %s: %w", row.NodeID, err)
}
