package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/retry"
)

// RemoteHandler dispatches an action to an out-of-process connector over
// HTTP. It is the production counterpart of the in-process handlers used
// in tests: both satisfy the same Handler interface.
type RemoteHandler struct {
	actionType string
	endpoint   string
	client     *http.Client
}

// NewRemoteHandler creates a handler that POSTs invocations to the
// connector endpoint registered for the action type.
func NewRemoteHandler(actionType, endpoint string) *RemoteHandler {
	return &RemoteHandler{
		actionType: actionType,
		endpoint:   endpoint,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Type returns the action type this handler serves
func (h *RemoteHandler) Type() string {
	return h.actionType
}

type remoteRequest struct {
	WorkflowExecutionID string         `json:"workflowExecutionId"`
	NodeID              string         `json:"nodeId"`
	ActionType          string         `json:"actionType"`
	Parameters          map[string]any `json:"parameters"`
}

type remoteResponse struct {
	Status       string         `json:"status"`
	Outputs      map[string]any `json:"outputs"`
	ErrorMessage string         `json:"errorMessage"`
}

// Execute POSTs the invocation and maps the HTTP outcome to a Result.
// Transport faults and 429/5xx responses classify as retriable.
func (h *RemoteHandler) Execute(ctx context.Context, inv *Invocation) *Result {
	body, err := json.Marshal(remoteRequest{
		WorkflowExecutionID: inv.WorkflowExecutionID.String(),
		NodeID:              inv.NodeID,
		ActionType:          h.actionType,
		Parameters:          inv.Parameters,
	})
	if err != nil {
		return Failed(fmt.Sprintf("failed to encode invocation: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if retry.IsRetryableError(err) || ctx.Err() != nil {
			return Retriable(fmt.Sprintf("connector unreachable: %v", err))
		}
		return Failed(fmt.Sprintf("connector request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("connector returned HTTP %d", resp.StatusCode)
		if retry.IsRetryableStatus(resp.StatusCode) {
			return Retriable(msg)
		}
		return Failed(msg)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Failed(fmt.Sprintf("failed to decode connector response: %v", err))
	}

	result := &Result{
		Outputs:      out.Outputs,
		ErrorMessage: out.ErrorMessage,
	}
	if result.Outputs == nil {
		result.Outputs = map[string]any{}
	}

	switch models.ActionStatus(out.Status) {
	case models.ActionSucceeded:
		result.Status = models.ActionSucceeded
	case models.ActionRetriableFailure:
		result.Status = models.ActionRetriableFailure
	default:
		result.Status = models.ActionFailed
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("connector reported status %q", out.Status)
		}
	}

	return result
}
