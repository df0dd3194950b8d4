package graph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/conductor/common/models"
)

func node(id string, targets ...string) models.Node {
	n := models.Node{ID: id, ActionType: "core.echo"}
	for _, t := range targets {
		n.Edges = append(n.Edges, models.Edge{TargetNode: t})
	}
	return n
}

func TestValidate_LinearChain(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-linear",
		StartNode: "a",
		Nodes:     []models.Node{node("a", "b"), node("b", "c"), node("c")},
	}

	result, err := NewValidator().Validate(def)
	require.NoError(t, err)
	assert.Empty(t, result.UnreachableNodes)
}

func TestValidate_EmptyGraph(t *testing.T) {
	def := &models.WorkflowDefinition{ID: "wf-empty", StartNode: "a"}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, EmptyGraph, verr.Kind)
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-dup",
		StartNode: "a",
		Nodes:     []models.Node{node("a"), node("a")},
	}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, DuplicateNodeID, verr.Kind)
	assert.Equal(t, "a", verr.NodeID)
}

func TestValidate_MissingStartNode(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-nostart",
		StartNode: "missing",
		Nodes:     []models.Node{node("a")},
	}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MissingStartNode, verr.Kind)
}

func TestValidate_UnknownEdgeTarget(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-badedge",
		StartNode: "a",
		Nodes:     []models.Node{node("a", "ghost")},
	}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, UnknownEdgeTarget, verr.Kind)
	assert.Equal(t, "a", verr.NodeID)
	assert.Equal(t, 0, verr.EdgeIndex)
}

func TestValidate_Cycle(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-cycle",
		StartNode: "a",
		Nodes:     []models.Node{node("a", "b"), node("b", "a")},
	}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Cycle, verr.Kind)
	assert.Equal(t, []string{"a", "b", "a"}, verr.Path)
}

func TestValidate_UnreachableCycleStillRejected(t *testing.T) {
	// The cycle x<->y hangs off nothing reachable from a.
	def := &models.WorkflowDefinition{
		ID:        "wf-island",
		StartNode: "a",
		Nodes:     []models.Node{node("a"), node("x", "y"), node("y", "x")},
	}

	_, err := NewValidator().Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Cycle, verr.Kind)
}

func TestValidate_UnreachableWarnsByDefault(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-orphan",
		StartNode: "a",
		Nodes:     []models.Node{node("a", "b"), node("b"), node("orphan")},
	}

	result, err := NewValidator().Validate(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, result.UnreachableNodes)
}

func TestValidate_UnreachableRejectedInStrictMode(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID:        "wf-orphan",
		StartNode: "a",
		Nodes:     []models.Node{node("a"), node("orphan")},
	}

	v := &Validator{StrictReachability: true}
	_, err := v.Validate(def)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Unreachable, verr.Kind)
	assert.Equal(t, []string{"orphan"}, verr.NodeIDs)
}

// TestValidate_ForwardDAGsAlwaysAccepted builds random DAGs whose edges only
// point forward in declaration order (so they cannot contain cycles) and
// checks the validator accepts every one of them.
func TestValidate_ForwardDAGsAlwaysAccepted(t *testing.T) {
	properties := gopter.NewProperties(nil)

	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5"}

	properties.Property("forward-edged graphs validate", prop.ForAll(
		func(adjacency []bool) bool {
			def := &models.WorkflowDefinition{ID: "wf-gen", StartNode: "n0"}
			for i := range ids {
				def.Nodes = append(def.Nodes, models.Node{ID: ids[i], ActionType: "core.echo"})
			}
			// adjacency flattens the strictly-upper-triangular edge matrix.
			k := 0
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					if k < len(adjacency) && adjacency[k] {
						def.Nodes[i].Edges = append(def.Nodes[i].Edges, models.Edge{TargetNode: ids[j]})
					}
					k++
				}
			}
			_, err := NewValidator().Validate(def)
			return err == nil
		},
		gen.SliceOfN(15, gen.Bool()),
	))

	properties.Property("adding a back edge introduces a rejection", prop.ForAll(
		func(from int) bool {
			def := &models.WorkflowDefinition{ID: "wf-gen", StartNode: "n0"}
			for i := range ids {
				var targets []models.Edge
				if i+1 < len(ids) {
					targets = append(targets, models.Edge{TargetNode: ids[i+1]})
				}
				def.Nodes = append(def.Nodes, models.Node{ID: ids[i], ActionType: "core.echo", Edges: targets})
			}
			// Close a loop from a later node back to n0.
			def.Nodes[from].Edges = append(def.Nodes[from].Edges, models.Edge{TargetNode: "n0"})
			_, err := NewValidator().Validate(def)
			verr, ok := err.(*ValidationError)
			return ok && verr.Kind == Cycle
		},
		gen.IntRange(1, len(ids)-1),
	))

	properties.TestingRun(t)
}
