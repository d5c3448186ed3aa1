package coach

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ashureev/moodcoach/internal/domain"
)

// reinforcedSuffix marks a suggestion picked from the user's own helpful history.
const reinforcedSuffix = " (This worked for you before!)"

// emergencyIntensity is the intensity at which the emergency bucket is used.
const emergencyIntensity = 8

// Selector picks one coping suggestion per turn. It is safe for concurrent use.
type Selector struct {
	catalog *Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector over catalog drawing from src. A nil src uses
// a randomly seeded source.
func NewSelector(catalog *Catalog, src rand.Source) *Selector {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Selector{catalog: catalog, rng: rand.New(src)}
}

// Select returns a suggestion for the analysed turn. Something the user
// marked helpful before for the same emotion or risk level always wins over
// the catalog; the first matching record in history order is used. Emotions
// are compared after alias folding, so "sadness" matches "sad".
func (s *Selector) Select(analysis domain.Analysis, history []domain.InterventionRecord) string {
	emotion := s.catalog.Canonical(analysis.PrimaryEmotion)
	for _, rec := range history {
		if !rec.Helpful || strings.TrimSpace(rec.Intervention) == "" {
			continue
		}
		recEmotion := s.catalog.Canonical(rec.Emotion)
		if (recEmotion != "" && recEmotion == emotion) || rec.RiskLevel == analysis.RiskLevel {
			return rec.Intervention + reinforcedSuffix
		}
	}

	if analysis.Intensity >= emergencyIntensity || analysis.RiskLevel == domain.RiskHigh {
		return s.pick(s.catalog.Emergency())
	}
	return s.pick(s.catalog.ForEmotion(analysis.PrimaryEmotion))
}

func (s *Selector) pick(items []string) string {
	if len(items) == 0 {
		return BreathingFallback
	}
	s.mu.Lock()
	i := s.rng.IntN(len(items))
	s.mu.Unlock()
	return items[i]
}
