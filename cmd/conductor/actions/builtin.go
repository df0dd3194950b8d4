// Package actions provides the built-in in-process action handlers.
// Connectors register out-of-process handlers through the admin API;
// these cover local plumbing and tests.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmatic/conductor/cmd/conductor/registry"
)

// RegisterBuiltins adds all built-in handlers to a registry.
func RegisterBuiltins(reg *registry.Registry) {
	reg.Register(&EchoHandler{})
	reg.Register(&DelayHandler{})
	reg.Register(&TransformHandler{})
}

// EchoHandler returns its "message" parameter as the "echo" output.
type EchoHandler struct{}

func (h *EchoHandler) Type() string { return "core.echo" }

func (h *EchoHandler) Execute(ctx context.Context, inv *registry.Invocation) *registry.Result {
	message, _ := inv.Parameters["message"].(string)
	return registry.Succeeded(map[string]any{"echo": message})
}

// DelayHandler sleeps for the "duration" parameter (Go duration string),
// honoring cancellation.
type DelayHandler struct{}

func (h *DelayHandler) Type() string { return "core.delay" }

func (h *DelayHandler) Execute(ctx context.Context, inv *registry.Invocation) *registry.Result {
	raw, _ := inv.Parameters["duration"].(string)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return registry.Failed(fmt.Sprintf("invalid duration %q: %v", raw, err))
	}

	select {
	case <-time.After(d):
		return registry.Succeeded(map[string]any{"slept": raw})
	case <-ctx.Done():
		return registry.Retriable("cancelled")
	}
}

// TransformHandler copies selected fields from its parameters to its
// outputs. The "fields" parameter maps output names to already-rendered
// values, which makes it a cheap join/reshape node.
type TransformHandler struct{}

func (h *TransformHandler) Type() string { return "core.transform" }

func (h *TransformHandler) Execute(ctx context.Context, inv *registry.Invocation) *registry.Result {
	fields, ok := inv.Parameters["fields"].(map[string]any)
	if !ok {
		return registry.Failed("transform requires a 'fields' object parameter")
	}

	outputs := make(map[string]any, len(fields))
	for name, value := range fields {
		outputs[name] = value
	}
	return registry.Succeeded(outputs)
}
