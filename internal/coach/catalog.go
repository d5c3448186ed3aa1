package coach

import (
	"errors"
	"fmt"
	"strings"
)

// Bucket names with special meaning in a catalog.
const (
	BucketEmergency = "emergency"
	BucketFallback  = "stress"
)

// BreathingFallback is the one suggestion offered when no reply could be generated.
const BreathingFallback = "Try 4-7-8 breathing: breathe in for 4 seconds, hold for 7, and exhale slowly for 8. Repeat three times."

// Catalog groups coping suggestions by emotion, plus an emergency bucket for
// high-intensity moments.
type Catalog struct {
	buckets map[string][]string
	aliases map[string]string
}

// NewCatalog builds a catalog. The emergency and fallback buckets must be non-empty
// so selection can always return something.
func NewCatalog(buckets map[string][]string, aliases map[string]string) (*Catalog, error) {
	for _, required := range []string{BucketEmergency, BucketFallback} {
		if len(buckets[required]) == 0 {
			return nil, fmt.Errorf("catalog bucket %q must not be empty", required)
		}
	}
	for alias, target := range aliases {
		if len(buckets[target]) == 0 {
			return nil, fmt.Errorf("alias %q points at empty bucket %q", alias, target)
		}
	}
	for name, items := range buckets {
		for _, item := range items {
			if strings.TrimSpace(item) == "" {
				return nil, errors.New("catalog bucket " + name + " contains an empty suggestion")
			}
		}
	}
	return &Catalog{buckets: buckets, aliases: aliases}, nil
}

// Emergency returns the high-intensity bucket.
func (c *Catalog) Emergency() []string {
	return c.buckets[BucketEmergency]
}

// Canonical folds an emotion label onto its bucket name ("sadness" -> "sad").
// Labels without an alias are returned lowercased.
func (c *Catalog) Canonical(emotion string) string {
	key := strings.ToLower(strings.TrimSpace(emotion))
	if target, ok := c.aliases[key]; ok {
		return target
	}
	return key
}

// ForEmotion returns the bucket for an emotion label, resolving aliases and
// falling back to the stress bucket.
func (c *Catalog) ForEmotion(emotion string) []string {
	key := c.Canonical(emotion)
	if key != BucketEmergency {
		if items := c.buckets[key]; len(items) > 0 {
			return items
		}
	}
	return c.buckets[BucketFallback]
}

// DefaultCatalog returns the built-in coping suggestions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultBuckets, defaultAliases)
	if err != nil {
		panic("coach: invalid default catalog: " + err.Error())
	}
	return c
}

var defaultBuckets = map[string][]string{
	BucketEmergency: {
		"STOP technique: Stop what you're doing, Take 3 deep breaths, Observe your feelings, Proceed with intention",
		"5-4-3-2-1 grounding: Name 5 things you see, 4 you can touch, 3 you hear, 2 you smell, 1 you taste",
		"Call someone who supports you right now - even a 2-minute check-in can help",
	},
	"stress": {
		"Try progressive muscle relaxation: tense and release each muscle group for 5 seconds",
		"Write your thoughts on paper for 3 minutes - no editing, just dump everything out",
		"Do 10 jumping jacks or stretch your arms above your head to release physical tension",
		"Try the 4-7-8 breathing: breathe in for 4, hold for 7, exhale for 8",
	},
	"sad": {
		"Practice self-compassion: What would you say to a friend feeling this way?",
		"Listen to one song that usually lifts your mood",
		"Write down 3 things you're grateful for today, however small",
		"Call or text someone who cares about you",
	},
	"bored": {
		"Set a 10-minute timer for a creative activity: draw, write, organize something",
		"Learn something new: look up a random topic you've always wondered about",
		"Go for a short walk, even if it's just around your room",
		"Text someone you haven't talked to in a while",
	},
	"angry": {
		"Try the RAIN technique: Recognize, Accept, Investigate with kindness, Natural awareness",
		"Do something physical: dance to one song, do stretches, or clean vigorously",
		"Write an angry letter you'll never send, then tear it up",
	},
}

var defaultAliases = map[string]string{
	"stressed":    "stress",
	"anxious":     "stress",
	"anxiety":     "stress",
	"overwhelmed": "stress",
	"sadness":     "sad",
	"lonely":      "sad",
	"down":        "sad",
	"depressed":   "sad",
	"boredom":     "bored",
	"restless":    "bored",
	"anger":       "angry",
	"frustrated":  "angry",
	"frustration": "angry",
	"mad":         "angry",
	"annoyed":     "angry",
}
