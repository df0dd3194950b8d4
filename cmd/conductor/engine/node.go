package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
	"github.com/flowmatic/conductor/common/models"
)

// Error kinds attached to failed action rows.
const (
	errKindTemplate      = "TemplateError"
	errKindParameter     = "ParameterError"
	errKindUnknownAction = "UnknownAction"
	errKindAction        = "ActionError"
	errKindExhausted     = "RetriesExhausted"
	errKindCancelled     = "Cancelled"
)

// nodeOutcome is the final, post-retry result of one node.
type nodeOutcome struct {
	status     models.ActionStatus
	outputs    map[string]any
	parameters map[string]any
	attempt    int
	err        *models.ActionError
	start      time.Time
	end        time.Time
}

func failedOutcome(kind, msg string) *nodeOutcome {
	return &nodeOutcome{
		status:  models.ActionFailed,
		outputs: map[string]any{},
		err:     &models.ActionError{Kind: kind, Message: msg},
	}
}

// executeNode runs one node's attempt loop: snapshot the context, render
// and validate parameters, invoke the handler under the action timeout,
// and back off between retriable attempts. Parameters are re-rendered
// each attempt against a fresh snapshot.
func (e *Engine) executeNode(ctx context.Context, outputs *execContext, exec *models.WorkflowExecution, node *models.Node) *nodeOutcome {
	start := time.Now().UTC()
	attempt := 0
	var out *nodeOutcome

	for {
		attempt++

		rendered, err := e.templates.Render(node.Parameters, outputs.templateModel())
		if err != nil {
			out = failedOutcome(errKindTemplate, err.Error())
			break
		}
		params, _ := rendered.(map[string]any)
		if params == nil {
			params = map[string]any{}
		}

		if err := e.params.Validate(node.ActionType, params); err != nil {
			out = failedOutcome(errKindParameter, err.Error())
			out.parameters = params
			break
		}

		handler, err := e.registry.Lookup(node.ActionType)
		if err != nil {
			out = failedOutcome(errKindUnknownAction, err.Error())
			out.parameters = params
			break
		}

		e.log.Debug("invoking action",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"action_type", node.ActionType,
			"attempt", attempt)
		e.publishEvent(context.WithoutCancel(ctx), &Event{
			Type:        EventNodeStarted,
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			NodeID:      node.ID,
			Attempt:     attempt,
		})

		result := e.invoke(ctx, handler, &registry.Invocation{
			WorkflowExecutionID: exec.ID,
			NodeID:              node.ID,
			Parameters:          params,
			Steps:               outputs.snapshotSteps(),
		})

		switch result.Status {
		case models.ActionSucceeded:
			out = &nodeOutcome{status: models.ActionSucceeded, outputs: result.Outputs}
			out.parameters = params

		case models.ActionFailed:
			out = failedOutcome(errKindAction, result.ErrorMessage)
			out.parameters = params

		case models.ActionRetriableFailure:
			if ctx.Err() == nil && e.policy.ShouldRetry(attempt, true) {
				delay := e.policy.NextDelay(attempt)
				e.log.Warn("action failed, retrying",
					"execution_id", exec.ID,
					"node_id", node.ID,
					"attempt", attempt,
					"delay", delay,
					"error", result.ErrorMessage)
				if sleepCtx(ctx, delay) != nil {
					out = cancelledOutcome(params)
					break
				}
				continue
			}
			if ctx.Err() != nil {
				out = cancelledOutcome(params)
				break
			}
			// Retries exhausted: the row lands as a hard failure.
			out = failedOutcome(errKindExhausted,
				fmt.Sprintf("retries exhausted after %d attempts: %s", attempt, result.ErrorMessage))
			out.parameters = params

		default:
			out = failedOutcome(errKindAction,
				fmt.Sprintf("handler returned invalid status %q", result.Status))
			out.parameters = params
		}
		break
	}

	out.attempt = attempt
	out.start = start
	out.end = time.Now().UTC()
	return out
}

// cancelledOutcome is the row shape for an attempt cut short by the
// workflow deadline or caller cancellation.
func cancelledOutcome(params map[string]any) *nodeOutcome {
	return &nodeOutcome{
		status:     models.ActionRetriableFailure,
		outputs:    map[string]any{},
		parameters: params,
		err:        &models.ActionError{Kind: errKindCancelled, Message: "cancelled"},
	}
}

// invoke runs one handler attempt under the per-action timeout. A handler
// that outlives its deadline is abandoned and the attempt synthesized as
// retriable; the handler sees its context cancelled.
func (e *Engine) invoke(ctx context.Context, h registry.Handler, inv *registry.Invocation) *registry.Result {
	actionCtx := ctx
	if e.cfg.DefaultActionTimeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, e.cfg.DefaultActionTimeout)
		defer cancel()
	}

	done := make(chan *registry.Result, 1)
	go func() {
		done <- h.Execute(actionCtx, inv)
	}()

	select {
	case result := <-done:
		if result == nil {
			return registry.Failed("handler returned no result")
		}
		return result
	case <-actionCtx.Done():
		if ctx.Err() != nil {
			return registry.Retriable("cancelled")
		}
		return registry.Retriable(
			fmt.Sprintf("action timed out after %s", e.cfg.DefaultActionTimeout))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
