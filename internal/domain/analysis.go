package domain

import (
	"strings"
)

// RiskLevel is the classifier's estimate of how likely an emotional-eating episode is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel normalizes a label, returning RiskMedium for anything unknown.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskHigh:
		return RiskHigh
	default:
		return RiskMedium
	}
}

// Defaults used when the classifier omits a numeric field or is unavailable.
const (
	DefaultIntensity  = 5
	DefaultEatingUrge = 3
)

// Analysis is the emotional read of a single incoming message.
type Analysis struct {
	PrimaryEmotion string    `json:"primaryEmotion"`
	Intensity      int       `json:"intensity"`
	Triggers       []string  `json:"triggers"`
	EatingUrge     int       `json:"eatingUrge"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Context        string    `json:"context"`
	Confidence     *float64  `json:"confidence,omitempty"`
}

// Normalize clamps numeric fields into [MinIntensity, MaxIntensity] and fills
// empty labels so downstream rules never see out-of-range values. A zero
// numeric field is treated as missing and replaced by its default.
func (a *Analysis) Normalize() {
	a.PrimaryEmotion = strings.ToLower(strings.TrimSpace(a.PrimaryEmotion))
	if a.PrimaryEmotion == "" {
		a.PrimaryEmotion = "neutral"
	}
	a.Intensity = clampOr(a.Intensity, DefaultIntensity)
	a.EatingUrge = clampOr(a.EatingUrge, DefaultEatingUrge)
	a.RiskLevel = ParseRiskLevel(string(a.RiskLevel))
	if a.Triggers == nil {
		a.Triggers = []string{}
	}
}

// HasTrigger reports whether trigger is among the analysis triggers, ignoring case.
func (a *Analysis) HasTrigger(trigger string) bool {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return false
	}
	for _, t := range a.Triggers {
		if strings.EqualFold(strings.TrimSpace(t), trigger) {
			return true
		}
	}
	return false
}

func clampOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < MinIntensity {
		return MinIntensity
	}
	if v > MaxIntensity {
		return MaxIntensity
	}
	return v
}

// ActionType is the class of next step the coach takes for a turn.
type ActionType string

const (
	ActionEmergencyIntervention ActionType = "emergency_intervention"
	ActionPatternBasedSupport   ActionType = "pattern_based_support"
	ActionPreventiveCheckIn     ActionType = "preventive_check_in"
	ActionSupportive            ActionType = "supportive_conversation"
)

// Priority ranks an action's urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// AgentAction is produced fresh for every turn.
type AgentAction struct {
	Type     ActionType `json:"type"`
	Priority Priority   `json:"priority"`
	Focus    string     `json:"focus"`
}
