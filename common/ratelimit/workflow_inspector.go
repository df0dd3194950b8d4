package ratelimit

import (
	"strings"

	"github.com/flowmatic/conductor/common/models"
)

// WorkflowProfile contains the cost analysis of one definition
type WorkflowProfile struct {
	Tier          WorkflowTier
	RemoteActions int
	TotalNodes    int
}

// InspectDefinition determines the submission tier of a definition.
// Actions outside the core.* namespace dispatch to remote connectors.
func InspectDefinition(def *models.WorkflowDefinition) WorkflowProfile {
	profile := WorkflowProfile{
		Tier:       TierLight,
		TotalNodes: len(def.Nodes),
	}

	for i := range def.Nodes {
		if !strings.HasPrefix(def.Nodes[i].ActionType, "core.") {
			profile.RemoteActions++
		}
	}

	switch {
	case profile.RemoteActions == 0:
		profile.Tier = TierLight
	case profile.RemoteActions <= 3:
		profile.Tier = TierStandard
	default:
		profile.Tier = TierHeavy
	}
	return profile
}
