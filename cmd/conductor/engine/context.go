package engine

import (
	"sync"

	"github.com/flowmatic/conductor/cmd/conductor/template"
)

// execContext is the per-run output store: trigger, vars and the outputs
// of completed nodes. The scheduler goroutine is the only writer; readers
// always receive deep copies, so concurrent sibling completions can never
// mutate a template's input mid-render.
type execContext struct {
	mu      sync.RWMutex
	trigger map[string]any
	vars    map[string]any
	steps   map[string]map[string]any
}

func newExecContext(trigger, vars map[string]any) *execContext {
	return &execContext{
		trigger: trigger,
		vars:    vars,
		steps:   make(map[string]map[string]any),
	}
}

// publish records a completed node's outputs.
func (c *execContext) publish(nodeID string, outputs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outputs == nil {
		outputs = map[string]any{}
	}
	c.steps[nodeID] = outputs
}

// snapshotSteps returns a deep copy of all published step outputs.
func (c *execContext) snapshotSteps() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps := make(map[string]map[string]any, len(c.steps))
	for nodeID, outputs := range c.steps {
		steps[nodeID] = deepCopyMap(outputs)
	}
	return steps
}

// templateModel builds the read-only view handed to the template engine.
func (c *execContext) templateModel() *template.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps := make(map[string]map[string]any, len(c.steps))
	for nodeID, outputs := range c.steps {
		steps[nodeID] = deepCopyMap(outputs)
	}
	return &template.Model{
		Trigger: deepCopyMap(c.trigger),
		Vars:    deepCopyMap(c.vars),
		Steps:   steps,
	}
}

// conditionView builds the steps variable for CEL edge conditions:
// nodeId -> {"outputs": {...}}.
func (c *execContext) conditionView() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps := make(map[string]any, len(c.steps))
	for nodeID, outputs := range c.steps {
		steps[nodeID] = map[string]any{"outputs": deepCopyMap(outputs)}
	}
	return steps
}

// finalSnapshot is the contextSnapshot persisted with the terminal
// transition: nodeId -> outputs.
func (c *execContext) finalSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]any, len(c.steps))
	for nodeID, outputs := range c.steps {
		snapshot[nodeID] = deepCopyMap(outputs)
	}
	return snapshot
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
