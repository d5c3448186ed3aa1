package coach

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/moodcoach/internal/domain"
)

const (
	// riskHourMinCount is the number of entries an hour needs to count as a risk hour.
	riskHourMinCount = 2
	// maxRiskHours caps how many risk hours a profile reports.
	maxRiskHours = 3
)

// PatternProfile summarizes a mood log. It is recomputed from entries on every
// request and treated as stale once new entries arrive.
type PatternProfile struct {
	TotalEntries     int            `json:"totalEntries"`
	TriggerFrequency map[string]int `json:"triggerFrequency"`
	EmotionFrequency map[string]int `json:"emotionFrequency"`
	DominantTrigger  string         `json:"mostCommonTrigger,omitempty"`
	DominantEmotion  string         `json:"mostCommonEmotion,omitempty"`
	MeanIntensity    float64        `json:"averageIntensity"`
	RiskHours        []string       `json:"riskTimes"`
}

// Empty reports whether the profile was built from no entries.
func (p PatternProfile) Empty() bool {
	return p.TotalEntries == 0
}

// AnalyzePatterns computes frequency statistics and risk hours from entries.
// It is a pure function of its input.
func AnalyzePatterns(entries []domain.MoodEntry) PatternProfile {
	profile := PatternProfile{
		TotalEntries:     len(entries),
		TriggerFrequency: make(map[string]int),
		EmotionFrequency: make(map[string]int),
		RiskHours:        []string{},
	}
	if len(entries) == 0 {
		return profile
	}

	triggers := newCounter()
	emotions := newCounter()
	var hourCounts [24]int
	sum := 0
	for _, e := range entries {
		triggers.add(e.Trigger)
		emotions.add(e.Emotion)
		if e.Hour >= 0 && e.Hour < 24 {
			hourCounts[e.Hour]++
		}
		sum += e.Intensity
	}

	profile.TriggerFrequency = triggers.counts
	profile.EmotionFrequency = emotions.counts
	profile.DominantTrigger = triggers.mode()
	profile.DominantEmotion = emotions.mode()
	profile.MeanIntensity = float64(sum) / float64(len(entries))
	profile.RiskHours = riskHours(hourCounts)
	return profile
}

// counter counts labels while remembering the order keys were first seen, so
// ties in mode() resolve the same way on every run.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) mode() string {
	best, bestCount := "", 0
	for _, key := range c.order {
		if n := c.counts[key]; n > bestCount {
			best, bestCount = key, n
		}
	}
	return best
}

func riskHours(hourCounts [24]int) []string {
	hours := make([]int, 0, 24)
	for h, n := range hourCounts {
		if n >= riskHourMinCount {
			hours = append(hours, h)
		}
	}
	// Stable on ascending hour, so equal counts keep the earlier hour first.
	sort.SliceStable(hours, func(i, j int) bool {
		return hourCounts[hours[i]] > hourCounts[hours[j]]
	})
	if len(hours) > maxRiskHours {
		hours = hours[:maxRiskHours]
	}

	labels := make([]string, len(hours))
	for i, h := range hours {
		labels[i] = formatHour(h)
	}
	return labels
}

func formatHour(h int) string {
	return fmt.Sprintf("%d:00", h)
}

// parseHour reads the hour back out of a "H:00" label.
func parseHour(label string) (int, bool) {
	hourPart, _, _ := strings.Cut(label, ":")
	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// inRiskWindow reports whether hour is within one hour of any risk hour.
// Hours do not wrap: 23 and 0 are not adjacent.
func inRiskWindow(hour int, riskHours []string) bool {
	for _, label := range riskHours {
		h, ok := parseHour(label)
		if !ok {
			continue
		}
		if d := hour - h; d >= -1 && d <= 1 {
			return true
		}
	}
	return false
}
