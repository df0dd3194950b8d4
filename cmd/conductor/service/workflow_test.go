package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/cmd/conductor/graph"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/repository"
)

func newWorkflowService(t *testing.T) *WorkflowService {
	t.Helper()
	return NewWorkflowService(repository.NewMemoryCatalog(), graph.NewValidator(), logger.New("error", "text"))
}

func TestCreateWorkflow_StoresVersionOne(t *testing.T) {
	svc := newWorkflowService(t)

	resp, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-cat"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Version)
	assert.NotEmpty(t, resp.Checksum)

	_, ver, err := svc.GetWorkflow(context.Background(), "wf-cat")
	require.NoError(t, err)
	assert.Equal(t, 1, ver.Version)
	assert.Equal(t, "a", ver.Definition.StartNode)
}

func TestCreateWorkflow_CyclicDefinitionRejected(t *testing.T) {
	svc := newWorkflowService(t)

	def := &models.WorkflowDefinition{
		ID:        "wf-cycle",
		StartNode: "a",
		Nodes: []models.Node{
			{ID: "a", ActionType: "core.echo", Edges: []models.Edge{{TargetNode: "b"}}},
			{ID: "b", ActionType: "core.echo", Edges: []models.Edge{{TargetNode: "a"}}},
		},
	}
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{Definition: def})
	var verr *graph.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, graph.Cycle, verr.Kind)

	_, err = svc.catalog.GetWorkflow(context.Background(), "wf-cycle")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateWorkflow_ReportsUnreachableNodes(t *testing.T) {
	svc := newWorkflowService(t)

	def := linearDefinition("wf-island")
	def.Nodes = append(def.Nodes, models.Node{ID: "island", ActionType: "core.echo"})

	resp, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{Definition: def})
	require.NoError(t, err)
	assert.Equal(t, []string{"island"}, resp.UnreachableNodes)
}

func TestPatchWorkflow_CreatesNewVersion(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-patch"),
	})
	require.NoError(t, err)

	patch := []byte(`[
		{"op": "add", "path": "/nodes/1/edges", "value": [{"targetNode": "c"}]},
		{"op": "add", "path": "/nodes/-", "value": {"id": "c", "actionType": "core.echo", "parameters": {"message": "tail"}}}
	]`)
	resp, err := svc.PatchWorkflow(context.Background(), "wf-patch", patch)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Version)

	ver, err := svc.GetVersion(context.Background(), "wf-patch", 2)
	require.NoError(t, err)
	assert.NotNil(t, ver.Definition.NodeByID("c"))

	// Version 1 stays readable.
	old, err := svc.GetVersion(context.Background(), "wf-patch", 1)
	require.NoError(t, err)
	assert.Nil(t, old.Definition.NodeByID("c"))
}

func TestPatchWorkflow_NoOpKeepsCurrentVersion(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-noop"),
	})
	require.NoError(t, err)

	resp, err := svc.PatchWorkflow(context.Background(), "wf-noop",
		[]byte(`[{"op": "replace", "path": "/startNode", "value": "a"}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Version)
}

func TestPatchWorkflow_RejectsPatchBreakingTheGraph(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-break"),
	})
	require.NoError(t, err)

	// Point b back at a: validation must reject the patched definition.
	patch := []byte(`[{"op": "add", "path": "/nodes/1/edges", "value": [{"targetNode": "a"}]}]`)
	_, err = svc.PatchWorkflow(context.Background(), "wf-break", patch)
	var verr *graph.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, graph.Cycle, verr.Kind)

	wf, err := svc.catalog.GetWorkflow(context.Background(), "wf-break")
	require.NoError(t, err)
	assert.Equal(t, 1, wf.CurrentVersion)
}

func TestPatchWorkflow_RejectsMalformedPatch(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-bad"),
	})
	require.NoError(t, err)

	_, err = svc.PatchWorkflow(context.Background(), "wf-bad", []byte(`{"not": "a patch"}`))
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestPatchWorkflow_RejectsUnsupportedOperation(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-ops"),
	})
	require.NoError(t, err)

	_, err = svc.PatchWorkflow(context.Background(), "wf-ops",
		[]byte(`[{"op": "merge", "path": "/displayName", "value": "x"}]`))
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestPatchWorkflow_RejectsNodeWithoutActionType(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-nodecheck"),
	})
	require.NoError(t, err)

	_, err = svc.PatchWorkflow(context.Background(), "wf-nodecheck",
		[]byte(`[{"op": "add", "path": "/nodes/-", "value": {"id": "c"}}]`))
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestPatchWorkflow_RejectsWorkflowIDChange(t *testing.T) {
	svc := newWorkflowService(t)
	_, err := svc.CreateWorkflow(context.Background(), &CreateWorkflowRequest{
		Definition: linearDefinition("wf-id"),
	})
	require.NoError(t, err)

	_, err = svc.PatchWorkflow(context.Background(), "wf-id",
		[]byte(`[{"op": "replace", "path": "/id", "value": "other"}]`))
	assert.ErrorIs(t, err, ErrInvalidPatch)
}
