// Package registry maps action type names to handlers. The registry is
// constructed at boot and injected into the conductor; it is never a
// package-level singleton.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/flowmatic/conductor/common/models"
)

// Invocation carries everything a handler needs for one action run.
// Parameters are post-render, post-validate; Steps is a value-copy of
// already-completed outputs, safe to read without coordination.
type Invocation struct {
	WorkflowExecutionID uuid.UUID
	NodeID              string
	Parameters          map[string]any
	Steps               map[string]map[string]any
}

// Result is a handler's outcome for one attempt.
type Result struct {
	Status       models.ActionStatus
	Outputs      map[string]any
	ErrorMessage string
}

// Succeeded builds a success result with the given outputs.
func Succeeded(outputs map[string]any) *Result {
	if outputs == nil {
		outputs = map[string]any{}
	}
	return &Result{Status: models.ActionSucceeded, Outputs: outputs}
}

// Failed builds a terminal failure result.
func Failed(msg string) *Result {
	return &Result{Status: models.ActionFailed, Outputs: map[string]any{}, ErrorMessage: msg}
}

// Retriable builds a transient failure result.
func Retriable(msg string) *Result {
	return &Result{Status: models.ActionRetriableFailure, Outputs: map[string]any{}, ErrorMessage: msg}
}

// Handler executes one action type. Implementations must be idempotent or
// safely retriable: the engine assumes at-least-once invocation on
// RetriableFailure.
type Handler interface {
	Type() string
	Execute(ctx context.Context, inv *Invocation) *Result
}

// ErrUnknownAction is wrapped into lookup failures.
type ErrUnknownAction struct {
	ActionType string
}

func (e *ErrUnknownAction) Error() string {
	return fmt.Sprintf("no handler registered for action type: %s", e.ActionType)
}

// Registry is the name -> handler table plus registration metadata.
// Read-mostly after startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	metadata map[string]*models.ActionMetadata
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		metadata: make(map[string]*models.ActionMetadata),
	}
}

// Register adds a handler; a second registration for the same type replaces
// the first.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// RegisterWithMetadata adds a handler together with its declared metadata.
func (r *Registry) RegisterWithMetadata(h Handler, meta *models.ActionMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
	r.metadata[h.Type()] = meta
}

// SetMetadata stores or refreshes metadata without touching the handler.
func (r *Registry) SetMetadata(meta *models.ActionMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[meta.ActionType] = meta
}

// Lookup returns the handler for an action type.
func (r *Registry) Lookup(actionType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[actionType]
	if !ok {
		return nil, &ErrUnknownAction{ActionType: actionType}
	}
	if meta, hasMeta := r.metadata[actionType]; hasMeta && !meta.IsEnabled {
		return nil, fmt.Errorf("action type is disabled: %s", actionType)
	}
	return h, nil
}

// Metadata returns the declared metadata for an action type, if any.
func (r *Registry) Metadata(actionType string) (*models.ActionMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metadata[actionType]
	return meta, ok
}

// List returns the registered action types in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
