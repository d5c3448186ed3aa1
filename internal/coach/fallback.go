package coach

import (
	"strings"

	"github.com/ashureev/moodcoach/internal/domain"
)

// fallbackContext describes an analysis built without the classifier.
const fallbackContext = "Unable to analyze deeply"

type emotionKeywords struct {
	emotion  string
	keywords []string
}

// Checked in order; the first category with a hit wins.
var fallbackKeywords = []emotionKeywords{
	{"stress", []string{"stressed", "overwhelmed", "pressure", "deadline", "anxious"}},
	{"sad", []string{"sad", "depressed", "down", "lonely", "empty"}},
	{"bored", []string{"bored", "nothing to do", "mindless", "restless"}},
	{"angry", []string{"angry", "frustrated", "mad", "annoyed"}},
}

// DetectEmotion guesses an emotion label from keywords, defaulting to neutral.
func DetectEmotion(message string) string {
	text := strings.ToLower(message)
	for _, group := range fallbackKeywords {
		if containsAny(text, group.keywords) {
			return group.emotion
		}
	}
	return "neutral"
}

// FallbackAnalysis is used when the classifier fails or is not configured.
func FallbackAnalysis(message string) domain.Analysis {
	return domain.Analysis{
		PrimaryEmotion: DetectEmotion(message),
		Intensity:      domain.DefaultIntensity,
		Triggers:       []string{},
		EatingUrge:     domain.DefaultEatingUrge,
		RiskLevel:      domain.RiskMedium,
		Context:        fallbackContext,
	}
}
