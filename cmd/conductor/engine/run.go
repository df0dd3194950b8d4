package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/common/models"
)

// completion is what a worker reports back to the scheduler for one node.
type completion struct {
	nodeID     string
	status     models.ActionStatus
	outputs    map[string]any
	persistErr error
}

// run is the per-execution scheduler state. A single goroutine (loop)
// owns every field; workers only read their invocation snapshot and send
// on completions.
type run struct {
	engine *Engine
	exec   *models.WorkflowExecution
	def    *models.WorkflowDefinition

	// persistCtx survives the workflow deadline so terminal rows still land.
	persistCtx context.Context

	outputs *execContext

	inDegree  map[string]int
	activated map[string]bool
	resolved  map[string]bool
	final     map[string]models.ActionStatus

	ready       []string
	completions chan completion
	inflight    int

	failed        bool
	persistFailed bool
}

func newRun(e *Engine, exec *models.WorkflowExecution, def *models.WorkflowDefinition, persistCtx context.Context) *run {
	inDegree := make(map[string]int, len(def.Nodes))
	for i := range def.Nodes {
		if _, ok := inDegree[def.Nodes[i].ID]; !ok {
			inDegree[def.Nodes[i].ID] = 0
		}
	}
	for i := range def.Nodes {
		for _, edge := range def.Nodes[i].Edges {
			inDegree[edge.TargetNode]++
		}
	}

	return &run{
		engine:      e,
		exec:        exec,
		def:         def,
		persistCtx:  persistCtx,
		outputs:     newExecContext(exec.TriggerPayload, exec.Vars),
		inDegree:    inDegree,
		activated:   make(map[string]bool, len(def.Nodes)),
		resolved:    make(map[string]bool, len(def.Nodes)),
		final:       make(map[string]models.ActionStatus, len(def.Nodes)),
		ready:       make([]string, 0, len(def.Nodes)),
		completions: make(chan completion, len(def.Nodes)),
	}
}

// loop runs the ready-set scheduler until no node is ready or in flight,
// then reduces the per-node outcomes to a terminal execution status.
func (r *run) loop(ctx context.Context) models.ExecutionStatus {
	// The start node is always eligible; a validated graph gives it no
	// incoming edges.
	r.activated[r.def.StartNode] = true
	r.resolve(r.def.StartNode)

	for {
		for len(r.ready) > 0 && r.inflight < r.engine.cfg.MaxParallelActions {
			nodeID := r.ready[0]
			r.ready = r.ready[1:]
			r.dispatch(ctx, nodeID)
		}
		if r.inflight == 0 && len(r.ready) == 0 {
			break
		}

		select {
		case c := <-r.completions:
			r.inflight--
			r.handleCompletion(c)
		case <-ctx.Done():
			return r.drain()
		}
	}

	if r.failed || r.persistFailed {
		return models.ExecutionFailed
	}
	return models.ExecutionSucceeded
}

// drain waits for in-flight workers after cancellation. Their rows are
// already persisted by the worker; nothing new is scheduled.
func (r *run) drain() models.ExecutionStatus {
	r.ready = nil
	for r.inflight > 0 {
		c := <-r.completions
		r.inflight--
		r.outputs.publish(c.nodeID, c.outputs)
		r.final[c.nodeID] = c.status
	}
	r.engine.log.Warn("execution cancelled",
		"execution_id", r.exec.ID, "workflow_id", r.exec.WorkflowID)
	return models.ExecutionCancelled
}

// dispatch hands a node to a worker goroutine. The worker renders,
// validates, invokes with retries and persists its own final row.
func (r *run) dispatch(ctx context.Context, nodeID string) {
	node := r.def.NodeByID(nodeID)
	r.inflight++

	go func() {
		out := r.engine.executeNode(ctx, r.outputs, r.exec, node)

		row := &models.ActionExecution{
			ID:                  uuid.New(),
			WorkflowExecutionID: r.exec.ID,
			NodeID:              node.ID,
			ActionType:          node.ActionType,
			Status:              out.status,
			Attempt:             out.attempt,
			RetryCount:          out.attempt - 1,
			Parameters:          out.parameters,
			Outputs:             out.outputs,
			Error:               out.err,
			StartTime:           out.start,
			EndTime:             out.end,
		}
		persistErr := r.engine.persistAction(r.persistCtx, row)

		r.engine.publishEvent(r.persistCtx, &Event{
			Type:        EventNodeCompleted,
			ExecutionID: r.exec.ID,
			WorkflowID:  r.exec.WorkflowID,
			NodeID:      node.ID,
			Status:      string(out.status),
			Attempt:     out.attempt,
		})

		r.completions <- completion{
			nodeID:     node.ID,
			status:     out.status,
			outputs:    out.outputs,
			persistErr: persistErr,
		}
	}()
}

func (r *run) handleCompletion(c completion) {
	if c.persistErr != nil {
		r.persistFailed = true
	}
	r.outputs.publish(c.nodeID, c.outputs)
	r.final[c.nodeID] = c.status
	if c.status == models.ActionFailed {
		r.failed = true
	}
	r.propagate(c.nodeID, c.status)
}

// propagate walks the completed node's outgoing edges: firing edges
// activate their targets, and every edge lowers the target's remaining
// in-degree. A target whose last incoming edge just resolved becomes
// ready or, if nothing activated it, skipped.
func (r *run) propagate(nodeID string, status models.ActionStatus) {
	node := r.def.NodeByID(nodeID)
	if node == nil {
		return
	}

	matched := false
	for i := range node.Edges {
		edge := &node.Edges[i]

		fires := false
		if !(node.Routing() == models.RouteFirstMatch && matched) {
			fires = r.edgeFires(edge, status)
		}
		if fires {
			matched = true
			r.activated[edge.TargetNode] = true
		}

		r.inDegree[edge.TargetNode]--
		if r.inDegree[edge.TargetNode] <= 0 {
			r.resolve(edge.TargetNode)
		}
	}
}

// edgeFires applies the edge's lifecycle gate, then its condition. A
// Skipped predecessor satisfies only always gates; a condition that
// errors is treated as not firing.
func (r *run) edgeFires(edge *models.Edge, status models.ActionStatus) bool {
	switch edge.Gate() {
	case models.WhenSuccess:
		if status != models.ActionSucceeded {
			return false
		}
	case models.WhenFailure:
		if status != models.ActionFailed {
			return false
		}
	case models.WhenAlways:
		// fires for any terminal status, including Skipped
	default:
		return false
	}

	if edge.Condition == "" {
		return true
	}
	ok, err := r.engine.conditions.Evaluate(
		edge.Condition, r.exec.TriggerPayload, r.exec.Vars, r.outputs.conditionView())
	if err != nil {
		r.engine.log.Error("edge condition failed, treating as not firing",
			"execution_id", r.exec.ID,
			"target_node", edge.TargetNode,
			"condition", edge.Condition,
			"error", err)
		return false
	}
	return ok
}

// resolve fires once per node, when all its incoming edges have resolved:
// an activated node joins the ready queue, anything else is skipped.
func (r *run) resolve(nodeID string) {
	if r.resolved[nodeID] {
		return
	}
	r.resolved[nodeID] = true

	if r.activated[nodeID] {
		r.ready = append(r.ready, nodeID)
		return
	}
	r.skip(nodeID)
}

// skip records a Skipped row for a node no firing edge reached, then
// propagates the skip so always-gated successors still run.
func (r *run) skip(nodeID string) {
	node := r.def.NodeByID(nodeID)
	if node == nil {
		return
	}
	r.engine.log.Debug("node skipped", "execution_id", r.exec.ID, "node_id", nodeID)

	now := time.Now().UTC()
	row := &models.ActionExecution{
		ID:                  uuid.New(),
		WorkflowExecutionID: r.exec.ID,
		NodeID:              nodeID,
		ActionType:          node.ActionType,
		Status:              models.ActionSkipped,
		Attempt:             1,
		StartTime:           now,
		EndTime:             now,
	}
	if err := r.engine.persistAction(r.persistCtx, row); err != nil {
		r.persistFailed = true
	}
	r.engine.publishEvent(r.persistCtx, &Event{
		Type:        EventNodeSkipped,
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		NodeID:      nodeID,
		Status:      string(models.ActionSkipped),
	})

	r.outputs.publish(nodeID, nil)
	r.final[nodeID] = models.ActionSkipped
	r.propagate(nodeID, models.ActionSkipped)
}
