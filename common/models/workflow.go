package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RoutePolicy governs which firing edges of a node activate successors.
type RoutePolicy string

const (
	// RouteParallel activates every firing edge independently.
	RouteParallel RoutePolicy = "parallel"
	// RouteFirstMatch activates only the first firing edge in declaration order.
	RouteFirstMatch RoutePolicy = "firstMatch"
)

// EdgeWhen is the lifecycle gate of an edge.
type EdgeWhen string

const (
	WhenSuccess EdgeWhen = "success"
	WhenFailure EdgeWhen = "failure"
	WhenAlways  EdgeWhen = "always"
)

// Edge is a directed successor relation with a gate.
type Edge struct {
	TargetNode string   `json:"targetNode"`
	When       EdgeWhen `json:"when,omitempty"`
	Condition  string   `json:"condition,omitempty"`
}

// Gate returns the edge's when-gate, defaulting to success.
func (e *Edge) Gate() EdgeWhen {
	if e.When == "" {
		return WhenSuccess
	}
	return e.When
}

// Node binds a node id to an action type, parameters and outgoing edges.
type Node struct {
	ID          string         `json:"id"`
	ActionType  string         `json:"actionType"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Edges       []Edge         `json:"edges,omitempty"`
	RoutePolicy RoutePolicy    `json:"routePolicy,omitempty"`
}

// Routing returns the node's route policy, defaulting to parallel.
func (n *Node) Routing() RoutePolicy {
	if n.RoutePolicy == "" {
		return RouteParallel
	}
	return n.RoutePolicy
}

// WorkflowDefinition is the immutable declarative DAG a caller submits.
type WorkflowDefinition struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	StartNode   string `json:"startNode"`
	Nodes       []Node `json:"nodes"`
}

// NodeByID returns the node with the given id, or nil.
func (d *WorkflowDefinition) NodeByID(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Checksum returns the hex SHA-256 of the canonical JSON encoding.
// Used to detect definition drift between catalog versions.
func (d *WorkflowDefinition) Checksum() string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Workflow is the catalog row tracking the current published version.
type Workflow struct {
	WorkflowID     string    `json:"workflow_id"`
	DisplayName    string    `json:"display_name"`
	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WorkflowVersion is one stored revision of a workflow definition.
type WorkflowVersion struct {
	WorkflowID string              `json:"workflow_id"`
	Version    int                 `json:"version"`
	Checksum   string              `json:"checksum"`
	Definition *WorkflowDefinition `json:"definition"`
	IsDraft    bool                `json:"is_draft"`
	CreatedAt  time.Time           `json:"created_at"`
}
