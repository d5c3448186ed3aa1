package coach

import (
	"github.com/ashureev/moodcoach/internal/domain"
)

const (
	// highIntensity is the intensity at which an entry counts as a risk factor.
	highIntensity = 7
	// recentWindow is how many of the latest entries are compared against the rest.
	recentWindow = 7
	// trendMargin is the change in mean intensity treated as noise.
	trendMargin = 0.5
)

const noDataMessage = "No data yet. Log a few moods to start seeing your patterns."

// Trend directions reported in Progress.
const (
	TrendImproving        = "improving"
	TrendWorsening        = "worsening"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// RiskFactors summarises high-intensity entries.
type RiskFactors struct {
	HighIntensityCount int     `json:"highIntensityCount"`
	HighIntensityRatio float64 `json:"highIntensityRatio"`
	HighRiskTrigger    string  `json:"highRiskTrigger,omitempty"`
}

// Progress compares the latest entries against everything before them. Lower
// intensity reads as improvement.
type Progress struct {
	RecentAverage  float64  `json:"recentAverage"`
	EarlierAverage *float64 `json:"earlierAverage,omitempty"`
	Change         float64  `json:"change"`
	Trend          string   `json:"trend"`
}

// Summary mirrors the dashboard counters.
type Summary struct {
	TotalEntries      int     `json:"totalEntries"`
	MostCommonEmotion string  `json:"mostCommonEmotion,omitempty"`
	MostCommonTrigger string  `json:"mostCommonTrigger,omitempty"`
	AverageIntensity  float64 `json:"averageIntensity"`
}

// Analytics is the per-user dashboard payload.
type Analytics struct {
	Summary
	Profile     PatternProfile `json:"profile"`
	RiskFactors RiskFactors    `json:"riskFactors"`
	Progress    Progress       `json:"progressIndicators"`
	Message     string         `json:"message,omitempty"`
}

// BuildAnalytics derives the dashboard from a user's entries, oldest first.
// An empty log yields zero values and the no-data message rather than an error.
func BuildAnalytics(entries []domain.MoodEntry) *Analytics {
	profile := AnalyzePatterns(entries)
	out := &Analytics{
		Summary: Summary{
			TotalEntries:      profile.TotalEntries,
			MostCommonEmotion: profile.DominantEmotion,
			MostCommonTrigger: profile.DominantTrigger,
			AverageIntensity:  profile.MeanIntensity,
		},
		Profile: profile,
	}
	if len(entries) == 0 {
		out.Message = noDataMessage
		out.Progress.Trend = TrendInsufficientData
		return out
	}

	out.RiskFactors = riskFactors(entries)
	out.Progress = progress(entries)
	return out
}

func riskFactors(entries []domain.MoodEntry) RiskFactors {
	triggers := newCounter()
	for _, e := range entries {
		if e.Intensity >= highIntensity {
			triggers.add(e.Trigger)
		}
	}
	var rf RiskFactors
	for _, n := range triggers.counts {
		rf.HighIntensityCount += n
	}
	rf.HighIntensityRatio = float64(rf.HighIntensityCount) / float64(len(entries))
	rf.HighRiskTrigger = triggers.mode()
	return rf
}

func progress(entries []domain.MoodEntry) Progress {
	split := len(entries) - recentWindow
	if split <= 0 {
		return Progress{
			RecentAverage: meanIntensity(entries),
			Trend:         TrendInsufficientData,
		}
	}

	recent := meanIntensity(entries[split:])
	earlier := meanIntensity(entries[:split])
	p := Progress{
		RecentAverage:  recent,
		EarlierAverage: &earlier,
		Change:         recent - earlier,
	}
	switch {
	case p.Change <= -trendMargin:
		p.Trend = TrendImproving
	case p.Change >= trendMargin:
		p.Trend = TrendWorsening
	default:
		p.Trend = TrendStable
	}
	return p
}

func meanIntensity(entries []domain.MoodEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0
	for _, e := range entries {
		sum += e.Intensity
	}
	return float64(sum) / float64(len(entries))
}
