package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmatic/conductor/common/models"
)

func definitionWith(actionTypes ...string) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{ID: "wf", StartNode: "n0"}
	for i, at := range actionTypes {
		def.Nodes = append(def.Nodes, models.Node{
			ID:         "n" + string(rune('0'+i)),
			ActionType: at,
		})
	}
	return def
}

func TestInspectDefinition_BuiltinsOnlyIsLight(t *testing.T) {
	profile := InspectDefinition(definitionWith("core.echo", "core.delay", "core.transform"))
	assert.Equal(t, TierLight, profile.Tier)
	assert.Equal(t, 0, profile.RemoteActions)
	assert.Equal(t, 3, profile.TotalNodes)
}

func TestInspectDefinition_FewRemoteActionsIsStandard(t *testing.T) {
	profile := InspectDefinition(definitionWith("core.echo", "crm.lookup", "mailer.send"))
	assert.Equal(t, TierStandard, profile.Tier)
	assert.Equal(t, 2, profile.RemoteActions)
}

func TestInspectDefinition_ManyRemoteActionsIsHeavy(t *testing.T) {
	profile := InspectDefinition(definitionWith(
		"crm.lookup", "mailer.send", "billing.charge", "audit.log"))
	assert.Equal(t, TierHeavy, profile.Tier)
	assert.Equal(t, 4, profile.RemoteActions)
}

func TestGetLimitForTier_UnknownTierGetsHeavyLimit(t *testing.T) {
	assert.Equal(t, DefaultTierConfigs[TierHeavy].Limit, GetLimitForTier(WorkflowTier("mystery")))
	assert.Equal(t, DefaultTierConfigs[TierHeavy].WindowSeconds, GetWindowForTier(WorkflowTier("mystery")))
}
