// Package condition evaluates edge-gate expressions with CEL.
package condition

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates edge conditions against the execution context.
// Compiled programs are cached per expression text.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate runs a condition expression against the context view.
// steps maps nodeId -> {"outputs": {...}} for completed predecessors.
func (e *Evaluator) Evaluate(expr string, trigger, vars map[string]any, steps map[string]any) (bool, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{
		"trigger": orEmpty(trigger),
		"vars":    orEmpty(vars),
		"steps":   orEmpty(steps),
	})
	if err != nil {
		return false, fmt.Errorf("condition evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean, got %T", out.Value())
	}

	return result, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("trigger", cel.DynType),
		cel.Variable("vars", cel.DynType),
		cel.Variable("steps", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// CacheSize returns the number of cached compiled expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
