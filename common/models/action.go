package models

import "time"

// ActionMetadata describes one registered action type.
// Connectors submit these through the admin registration endpoint.
type ActionMetadata struct {
	ActionType      string         `json:"actionType"`
	DisplayName     string         `json:"displayName,omitempty"`
	Description     string         `json:"description,omitempty"`
	ConnectorID     string         `json:"connectorId,omitempty"`
	EndpointURL     string         `json:"endpointUrl,omitempty"`
	ParameterSchema map[string]any `json:"parameterSchema,omitempty"`
	OutputSchema    map[string]any `json:"outputSchema,omitempty"`
	RequiresAuth    bool           `json:"requiresAuth"`
	IsEnabled       bool           `json:"isEnabled"`
	RegisteredAt    time.Time      `json:"registeredAt,omitempty"`
}
