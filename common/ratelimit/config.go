package ratelimit

// WorkflowTier buckets definitions by dispatch cost. Remote connector
// actions dominate the cost of a run, so tiers count those rather than
// total nodes.
type WorkflowTier string

const (
	TierLight    WorkflowTier = "light"    // built-in actions only
	TierStandard WorkflowTier = "standard" // a few remote actions
	TierHeavy    WorkflowTier = "heavy"    // remote-action heavy
)

// TierConfig defines submission limits for one workflow tier
type TierConfig struct {
	Tier          WorkflowTier
	Limit         int64 // Submissions allowed per window
	WindowSeconds int
	Description   string
}

// Default tier configurations
var DefaultTierConfigs = map[WorkflowTier]TierConfig{
	TierLight: {
		Tier:          TierLight,
		Limit:         120,
		WindowSeconds: 60,
		Description:   "Built-in actions only - 120 submissions/minute",
	},
	TierStandard: {
		Tier:          TierStandard,
		Limit:         30,
		WindowSeconds: 60,
		Description:   "Up to 3 remote actions - 30 submissions/minute",
	},
	TierHeavy: {
		Tier:          TierHeavy,
		Limit:         10,
		WindowSeconds: 60,
		Description:   "4+ remote actions - 10 submissions/minute",
	},
}

// GlobalConfig contains the service-wide submission limit
type GlobalConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultGlobalConfig caps total submissions across all workflows
var DefaultGlobalConfig = GlobalConfig{
	Limit:         600,
	WindowSeconds: 60,
}

// GetLimitForTier returns the submission limit for a tier
func GetLimitForTier(tier WorkflowTier) int64 {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.Limit
	}
	// Unknown tiers get the most restrictive limit
	return DefaultTierConfigs[TierHeavy].Limit
}

// GetWindowForTier returns the window for a tier
func GetWindowForTier(tier WorkflowTier) int {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.WindowSeconds
	}
	return DefaultTierConfigs[TierHeavy].WindowSeconds
}
