package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types published during a run.
const (
	EventExecutionStarted  = "execution.started"
	EventExecutionFinished = "execution.finished"
	EventNodeStarted       = "node.started"
	EventNodeCompleted     = "node.completed"
	EventNodeSkipped       = "node.skipped"
)

// Event is one lifecycle notification. Events are advisory: the durable
// record is the telemetry store, and a dropped event never affects the run.
type Event struct {
	Type        string    `json:"type"`
	ExecutionID uuid.UUID `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	NodeID      string    `json:"node_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventPublisher receives lifecycle events. Implementations must not
// block the scheduler; publish errors are the publisher's problem.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event)
}

func (e *Engine) publishEvent(ctx context.Context, event *Event) {
	if e.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.events.Publish(ctx, event)
}
