package engine

// Outcome of processing a single submission.
type Decision string

const (
	// Submission does not carry a qualifying link; nothing is done
	DecisionSkip   Decision = "skip"
	DecisionAccept Decision = "accept"
	// Author posted too recently
	DecisionRejectCooldown Decision = "reject-cooldown"
	// Submission body is too short
	DecisionRejectShortDescription Decision = "reject-short-description"
	// Author's platform reputation is below the threshold; comments were not evaluated
	DecisionRejectLowReputation Decision = "reject-low-reputation"
	// Author has not left enough qualifying comments
	DecisionRejectLowEngagement Decision = "reject-low-engagement"
)

// Whether the decision removes the submission.
func (d Decision) IsRejection() bool {
	switch d {
	case DecisionRejectCooldown, DecisionRejectShortDescription, DecisionRejectLowReputation, DecisionRejectLowEngagement:
		return true
	default:
		return false
	}
}

// Every decision a processed submission can reach.
var AllDecisions = []Decision{
	DecisionSkip,
	DecisionAccept,
	DecisionRejectCooldown,
	DecisionRejectShortDescription,
	DecisionRejectLowReputation,
	DecisionRejectLowEngagement,
}
