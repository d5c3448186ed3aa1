package coach

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
)

// aboveBaselineMargin is how far above the mean intensity a turn must be to be called out.
const aboveBaselineMargin = 2

// Insights explains how the current turn relates to the user's history.
// Each statement is gated independently and they appear in a fixed order.
func Insights(profile PatternProfile, analysis domain.Analysis, now time.Time) []string {
	insights := []string{}

	if profile.DominantTrigger != "" && analysis.HasTrigger(profile.DominantTrigger) {
		insights = append(insights, fmt.Sprintf(
			"This is your most common trigger - we've worked on this %d times",
			profile.TriggerFrequency[profile.DominantTrigger]))
	}

	if inRiskWindow(now.Hour(), profile.RiskHours) {
		insights = append(insights, "You're in a high-risk time period based on your patterns")
	}

	if !profile.Empty() && float64(analysis.Intensity) > profile.MeanIntensity+aboveBaselineMargin {
		insights = append(insights, "This intensity is higher than your usual - extra support might help")
	}

	return insights
}

// Recommendations suggests proactive steps from the profile alone.
func Recommendations(profile PatternProfile) []string {
	recs := []string{}
	if len(profile.RiskHours) > 0 {
		recs = append(recs, "Consider planning activities during your high-risk times: "+strings.Join(profile.RiskHours, ", "))
	}
	if profile.DominantTrigger != "" {
		recs = append(recs, "Work on a coping plan specifically for "+profile.DominantTrigger)
	}
	return recs
}
