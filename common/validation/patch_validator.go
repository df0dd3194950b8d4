package validation

import (
	"fmt"
)

// PatchValidator validates JSON Patch operations against workflow definitions
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// maxNodesPerPatch bounds how many nodes a single patch may add. Larger
// rewrites should submit a fresh definition instead.
const maxNodesPerPatch = 20

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	if len(operations) == 0 {
		return fmt.Errorf("patch must contain at least one operation")
	}

	nodesAdded := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		if op["op"] == "add" && op["path"] == "/nodes/-" {
			nodesAdded++
		}
	}

	if nodesAdded > maxNodesPerPatch {
		return fmt.Errorf("patch validation failed: cannot add more than %d nodes per patch (attempted: %d)", maxNodesPerPatch, nodesAdded)
	}

	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	switch opType {
	case "add", "replace", "test":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}

		// Node additions must at least carry an id and action type;
		// the graph validator checks the rest after the patch applies.
		if opType == "add" && path == "/nodes/-" {
			if err := v.validateNodeValue(op["value"], index); err != nil {
				return err
			}
		}

	case "remove":
		// Remove doesn't need value

	case "move", "copy":
		if _, ok := op["from"].(string); !ok {
			return fmt.Errorf("operation %d: 'from' required for %s operation", index, opType)
		}

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

// validateNodeValue validates a node value in a patch
func (v *PatchValidator) validateNodeValue(value interface{}, opIndex int) error {
	nodeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}

	if id, ok := nodeValue["id"].(string); !ok || id == "" {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}

	if at, ok := nodeValue["actionType"].(string); !ok || at == "" {
		return fmt.Errorf("operation %d: node must have 'actionType' field (string)", opIndex)
	}

	if params, exists := nodeValue["parameters"]; exists {
		if _, ok := params.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'parameters' must be an object, got %T", opIndex, params)
		}
	}

	return nil
}
