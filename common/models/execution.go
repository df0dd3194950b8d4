package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the per-execution lifecycle state.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "Pending"
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionSucceeded ExecutionStatus = "Succeeded"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionCancelled ExecutionStatus = "Cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle; transitions never go backward.
func (s ExecutionStatus) rank() int {
	switch s {
	case ExecutionPending:
		return 0
	case ExecutionRunning:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether s -> next is a legal forward transition.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// ActionStatus is the terminal state of one action attempt sequence.
type ActionStatus string

const (
	ActionSucceeded        ActionStatus = "Succeeded"
	ActionFailed           ActionStatus = "Failed"
	ActionRetriableFailure ActionStatus = "RetriableFailure"
	ActionSkipped          ActionStatus = "Skipped"
)

// WorkflowExecution is the persisted per-run record.
type WorkflowExecution struct {
	ID                uuid.UUID       `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	WorkflowVersion   int             `json:"workflow_version"`
	WorkflowRequestID string          `json:"workflow_request_id"`
	Status            ExecutionStatus `json:"status"`
	TriggerPayload    map[string]any  `json:"trigger_payload,omitempty"`
	Vars              map[string]any  `json:"vars,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           *time.Time      `json:"end_time,omitempty"`
	CorrelationID     string          `json:"correlation_id,omitempty"`
	ContextSnapshot   map[string]any  `json:"context_snapshot,omitempty"`
}

// ActionError is the structured error attached to a failed action row.
type ActionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ActionExecution is the persisted per-node telemetry row.
type ActionExecution struct {
	ID                  uuid.UUID      `json:"id"`
	WorkflowExecutionID uuid.UUID      `json:"workflow_execution_id"`
	NodeID              string         `json:"node_id"`
	ActionType          string         `json:"action_type"`
	Status              ActionStatus   `json:"status"`
	Attempt             int            `json:"attempt"`
	RetryCount          int            `json:"retry_count"`
	Parameters          map[string]any `json:"parameters,omitempty"`
	Outputs             map[string]any `json:"outputs,omitempty"`
	Error               *ActionError   `json:"error,omitempty"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
}
