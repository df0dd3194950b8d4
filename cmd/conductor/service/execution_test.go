package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/actions"
	"github.com/flowmatic/conductor/cmd/conductor/engine"
	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/cache"
	"github.com/flowmatic/conductor/common/config"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/queue"
	"github.com/flowmatic/conductor/common/repository"
	"github.com/flowmatic/conductor/common/retry"
)

type executionFixture struct {
	svc       *ExecutionService
	workflows *WorkflowService
	telemetry *repository.MemoryTelemetry
}

func newExecutionFixture(t *testing.T, allowDraft bool) *executionFixture {
	t.Helper()
	log := logger.New("error", "text")
	telemetry := repository.NewMemoryTelemetry()
	catalog := repository.NewMemoryCatalog()
	validator := graph.NewValidator()

	reg := registryWithBuiltins()
	eng := engine.New(reg, telemetry,
		engine.WithLogger(log),
		engine.WithRetryPolicy(retry.FromConfig(config.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			BackoffFactor: 1.0,
			MaxDelay:      5 * time.Millisecond,
		})),
		engine.WithOrchestration(config.OrchestrationConfig{
			MaxParallelActions:     4,
			DefaultActionTimeout:   time.Second,
			DefaultWorkflowTimeout: 10 * time.Second,
		}))

	q := queue.NewMemoryQueue(log)
	t.Cleanup(func() { q.Close() })

	defCache := cache.NewMemoryCache(log)
	t.Cleanup(func() { defCache.Close() })

	svc := NewExecutionService(telemetry, catalog, eng, validator, q, nil, defCache, allowDraft, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, svc.Start(ctx))

	return &executionFixture{
		svc:       svc,
		workflows: NewWorkflowService(catalog, validator, log),
		telemetry: telemetry,
	}
}

func createTestWorkflow(t *testing.T, f *executionFixture, def *models.WorkflowDefinition, draft bool) {
	t.Helper()
	_, err := f.workflows.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: def,
		IsDraft:    draft,
	})
	require.NoError(t, err)
}

func linearDefinition(id string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:        id,
		StartNode: "a",
		Nodes: []models.Node{
			{ID: "a", ActionType: "core.echo",
				Parameters: map[string]any{"message": "{{ trigger.name }}"},
				Edges:      []models.Edge{{TargetNode: "b"}}},
			{ID: "b", ActionType: "core.echo",
				Parameters: map[string]any{"message": "bye {{ steps.a.outputs.echo }}"}},
		},
	}
}

func waitTerminal(t *testing.T, f *executionFixture, id uuid.UUID) *models.WorkflowExecution {
	t.Helper()
	var exec *models.WorkflowExecution
	require.Eventually(t, func() bool {
		var err error
		exec, err = f.telemetry.GetExecution(context.Background(), id)
		return err == nil && exec.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return exec
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-submit"), false)

	resp, err := f.svc.Submit(context.Background(), &SubmitRequest{
		WorkflowID:     "wf-submit",
		RequestID:      "req-1",
		TriggerPayload: map[string]any{"name": "ada"},
	})
	require.NoError(t, err)
	assert.False(t, resp.Deduplicated)
	assert.Equal(t, 1, resp.Version)

	exec := waitTerminal(t, f, resp.ExecutionID)
	assert.Equal(t, models.ExecutionSucceeded, exec.Status)

	detail, err := f.svc.GetExecution(context.Background(), resp.ExecutionID)
	require.NoError(t, err)
	require.Len(t, detail.Actions, 2)
	assert.Equal(t, "bye ada", detail.Actions[1].Outputs["echo"])
}

func TestSubmit_SameRequestIDIsIdempotent(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-idem"), false)

	first, err := f.svc.Submit(context.Background(), &SubmitRequest{
		WorkflowID: "wf-idem", RequestID: "req-1",
	})
	require.NoError(t, err)
	waitTerminal(t, f, first.ExecutionID)

	second, err := f.svc.Submit(context.Background(), &SubmitRequest{
		WorkflowID: "wf-idem", RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)

	// The repeat must not have scheduled a second run.
	detail, err := f.svc.GetExecution(context.Background(), first.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, detail.Actions, 2)
}

func TestSubmit_ConcurrentDuplicatesCollapseToOneExecution(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-race"), false)

	const submitters = 10
	var wg sync.WaitGroup
	results := make([]*SubmitResponse, submitters)
	errs := make([]error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Submit(context.Background(), &SubmitRequest{
				WorkflowID: "wf-race", RequestID: "req-racy",
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < submitters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ExecutionID, results[i].ExecutionID)
		if !results[i].Deduplicated {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	exec := waitTerminal(t, f, results[0].ExecutionID)
	assert.Equal(t, models.ExecutionSucceeded, exec.Status)

	detail, err := f.svc.GetExecution(context.Background(), results[0].ExecutionID)
	require.NoError(t, err)
	assert.Len(t, detail.Actions, 2)
}

func TestSubmit_DistinctRequestIDsRunIndependently(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-two"), false)

	a, err := f.svc.Submit(context.Background(), &SubmitRequest{WorkflowID: "wf-two", RequestID: "req-a"})
	require.NoError(t, err)
	b, err := f.svc.Submit(context.Background(), &SubmitRequest{WorkflowID: "wf-two", RequestID: "req-b"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ExecutionID, b.ExecutionID)
	waitTerminal(t, f, a.ExecutionID)
	waitTerminal(t, f, b.ExecutionID)
}

func TestSubmit_DraftVersionRejectedUnlessAllowed(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-draft"), true)

	_, err := f.svc.Submit(context.Background(), &SubmitRequest{WorkflowID: "wf-draft", RequestID: "r"})
	assert.ErrorIs(t, err, ErrDraftExecution)

	allowed := newExecutionFixture(t, true)
	createTestWorkflow(t, allowed, linearDefinition("wf-draft"), true)
	resp, err := allowed.svc.Submit(context.Background(), &SubmitRequest{WorkflowID: "wf-draft", RequestID: "r"})
	require.NoError(t, err)
	exec := waitTerminal(t, allowed, resp.ExecutionID)
	assert.Equal(t, models.ExecutionSucceeded, exec.Status)
}

func TestSubmit_UnknownWorkflowFails(t *testing.T) {
	f := newExecutionFixture(t, false)

	_, err := f.svc.Submit(context.Background(), &SubmitRequest{WorkflowID: "ghost", RequestID: "r"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmit_PinnedVersionStaysPinned(t *testing.T) {
	f := newExecutionFixture(t, false)
	createTestWorkflow(t, f, linearDefinition("wf-pin"), false)

	// Bump to version 2 with a different second node.
	patch := []byte(`[{"op":"replace","path":"/nodes/1/parameters/message","value":"changed"}]`)
	resp, err := f.workflows.PatchWorkflow(context.Background(), "wf-pin", patch)
	require.NoError(t, err)
	require.Equal(t, 2, resp.Version)

	pinned, err := f.svc.Submit(context.Background(), &SubmitRequest{
		WorkflowID: "wf-pin", RequestID: "pin", Version: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Version)

	exec := waitTerminal(t, f, pinned.ExecutionID)
	assert.Equal(t, 1, exec.WorkflowVersion)
}

func TestGetExecution_UnknownIDReturnsNotFound(t *testing.T) {
	f := newExecutionFixture(t, false)

	_, err := f.svc.GetExecution(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func registryWithBuiltins() *registry.Registry {
	reg := registry.New()
	actions.RegisterBuiltins(reg)
	return reg
}
