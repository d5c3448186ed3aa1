package coach

import (
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
)

// urgentEatingUrge is the urge level that forces an emergency intervention.
const urgentEatingUrge = 8

// DecideAction classifies the next step for a turn. Rules are checked in
// priority order and the first match wins: risk, then a confirmed trigger,
// then time of day.
func DecideAction(analysis domain.Analysis, profile PatternProfile, now time.Time) domain.AgentAction {
	if analysis.RiskLevel == domain.RiskHigh || analysis.EatingUrge >= urgentEatingUrge {
		return domain.AgentAction{
			Type:     domain.ActionEmergencyIntervention,
			Priority: domain.PriorityHigh,
			Focus:    "immediate_coping",
		}
	}

	if profile.DominantTrigger != "" && analysis.HasTrigger(profile.DominantTrigger) {
		return domain.AgentAction{
			Type:     domain.ActionPatternBasedSupport,
			Priority: domain.PriorityMedium,
			Focus:    "known_trigger",
		}
	}

	if inRiskWindow(now.Hour(), profile.RiskHours) {
		return domain.AgentAction{
			Type:     domain.ActionPreventiveCheckIn,
			Priority: domain.PriorityMedium,
			Focus:    "risk_time",
		}
	}

	return domain.AgentAction{
		Type:     domain.ActionSupportive,
		Priority: domain.PriorityLow,
		Focus:    "general_support",
	}
}
