// Package graph performs structural validation of workflow definitions
// before any side effect: duplicate ids, unknown edge targets, cycle
// detection and reachability from the start node.
package graph

import (
	"fmt"
	"strings"

	"github.com/flowmatic/conductor/common/models"
)

// DefectKind identifies a class of structural defect.
type DefectKind string

const (
	EmptyGraph        DefectKind = "EmptyGraph"
	DuplicateNodeID   DefectKind = "DuplicateNodeId"
	MissingStartNode  DefectKind = "MissingStartNode"
	UnknownEdgeTarget DefectKind = "UnknownEdgeTarget"
	Cycle             DefectKind = "Cycle"
	Unreachable       DefectKind = "Unreachable"
)

// ValidationError reports the first structural defect found.
type ValidationError struct {
	Kind      DefectKind
	NodeID    string
	EdgeIndex int
	Path      []string
	NodeIDs   []string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case EmptyGraph:
		return "workflow has no nodes"
	case DuplicateNodeID:
		return fmt.Sprintf("duplicate node id: %s", e.NodeID)
	case MissingStartNode:
		return fmt.Sprintf("start node not found: %s", e.NodeID)
	case UnknownEdgeTarget:
		return fmt.Sprintf("node %s edge %d targets unknown node", e.NodeID, e.EdgeIndex)
	case Cycle:
		return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
	case Unreachable:
		return fmt.Sprintf("unreachable nodes: %s", strings.Join(e.NodeIDs, ", "))
	}
	return string(e.Kind)
}

// Validator checks workflow definitions for structural defects.
type Validator struct {
	// StrictReachability turns unreachable nodes from a warning into a
	// rejection.
	StrictReachability bool
}

// NewValidator creates a validator with default (lenient) reachability.
func NewValidator() *Validator {
	return &Validator{}
}

// Result carries non-fatal findings alongside a passing validation.
type Result struct {
	UnreachableNodes []string
}

// Validate checks the definition and returns the first defect found.
// Unreachable nodes are returned in Result unless strict mode rejects them.
func (v *Validator) Validate(def *models.WorkflowDefinition) (*Result, error) {
	if len(def.Nodes) == 0 {
		return nil, &ValidationError{Kind: EmptyGraph}
	}

	nodes := make(map[string]*models.Node, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if _, dup := nodes[n.ID]; dup {
			return nil, &ValidationError{Kind: DuplicateNodeID, NodeID: n.ID}
		}
		nodes[n.ID] = n
	}

	if _, ok := nodes[def.StartNode]; !ok {
		return nil, &ValidationError{Kind: MissingStartNode, NodeID: def.StartNode}
	}

	for i := range def.Nodes {
		n := &def.Nodes[i]
		for j := range n.Edges {
			if _, ok := nodes[n.Edges[j].TargetNode]; !ok {
				return nil, &ValidationError{Kind: UnknownEdgeTarget, NodeID: n.ID, EdgeIndex: j}
			}
		}
	}

	// Cycle detection over the whole graph, not just the reachable part:
	// an unreachable cycle must still fail validation.
	if path := findCycle(def, nodes); path != nil {
		return nil, &ValidationError{Kind: Cycle, Path: path}
	}

	unreachable := findUnreachable(def, nodes)
	if len(unreachable) > 0 && v.StrictReachability {
		return nil, &ValidationError{Kind: Unreachable, NodeIDs: unreachable}
	}

	return &Result{UnreachableNodes: unreachable}, nil
}

type dfsColor int

const (
	unvisited dfsColor = iota
	onStack
	done
)

// findCycle runs a three-color DFS from every node and returns the first
// cycle path found, closed on the repeated node (e.g. [a b a]).
func findCycle(def *models.WorkflowDefinition, nodes map[string]*models.Node) []string {
	colors := make(map[string]dfsColor, len(nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = onStack
		stack = append(stack, id)

		for _, e := range nodes[id].Edges {
			target := e.TargetNode
			switch colors[target] {
			case onStack:
				// Back-edge: slice the cycle out of the DFS stack.
				start := 0
				for i, sid := range stack {
					if sid == target {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), target)
				return true
			case unvisited:
				if visit(target) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = done
		return false
	}

	// Deterministic order: iterate declaration order, not map order.
	for i := range def.Nodes {
		id := def.Nodes[i].ID
		if colors[id] == unvisited {
			if visit(id) {
				return cycle
			}
		}
	}

	return nil
}

// findUnreachable returns node ids not reachable from the start node,
// in declaration order.
func findUnreachable(def *models.WorkflowDefinition, nodes map[string]*models.Node) []string {
	reached := make(map[string]bool, len(nodes))
	frontier := []string{def.StartNode}
	reached[def.StartNode] = true

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, e := range nodes[id].Edges {
			if !reached[e.TargetNode] {
				reached[e.TargetNode] = true
				frontier = append(frontier, e.TargetNode)
			}
		}
	}

	var unreachable []string
	for i := range def.Nodes {
		if !reached[def.Nodes[i].ID] {
			unreachable = append(unreachable, def.Nodes[i].ID)
		}
	}
	return unreachable
}
