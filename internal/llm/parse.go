package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ashureev/moodcoach/internal/domain"
)

// wireAnalysis is the classifier's JSON answer. Models are loose with number
// types, so numeric fields accept strings too.
type wireAnalysis struct {
	PrimaryEmotion string       `json:"primaryEmotion"`
	Intensity      looseNumber  `json:"intensity"`
	Triggers       []string     `json:"triggers"`
	EatingUrge     looseNumber  `json:"eatingUrge"`
	RiskLevel      string       `json:"riskLevel"`
	Context        string       `json:"context"`
	Confidence     *looseNumber `json:"confidence"`
}

type looseNumber float64

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(b))
	}
	*n = looseNumber(f)
	return nil
}

// ParseAnalysis extracts the JSON object from a model answer and normalizes it.
func ParseAnalysis(content string) (domain.Analysis, error) {
	raw := extractJSON(content)
	if raw == "" {
		return domain.Analysis{}, errors.New("classifier output contains no JSON object")
	}

	var w wireAnalysis
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return domain.Analysis{}, fmt.Errorf("classifier invalid json: %w", err)
	}

	triggers := make([]string, 0, len(w.Triggers))
	for _, t := range w.Triggers {
		if t = strings.TrimSpace(t); t != "" {
			triggers = append(triggers, t)
		}
	}

	a := domain.Analysis{
		PrimaryEmotion: w.PrimaryEmotion,
		Intensity:      int(math.Round(float64(w.Intensity))),
		Triggers:       triggers,
		EatingUrge:     int(math.Round(float64(w.EatingUrge))),
		RiskLevel:      domain.RiskLevel(w.RiskLevel),
		Context:        strings.TrimSpace(w.Context),
	}
	if w.Confidence != nil {
		c := math.Min(math.Max(float64(*w.Confidence), 0), 1)
		a.Confidence = &c
	}
	a.Normalize()
	return a, nil
}

// extractJSON strips code fences and surrounding prose, returning the
// outermost object.
func extractJSON(s string) string {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "```") {
		rest := strings.TrimPrefix(raw, "```")
		if i := strings.Index(rest, "\n"); i >= 0 {
			rest = rest[i+1:]
		}
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		raw = strings.TrimSpace(rest)
	}
	i := strings.Index(raw, "{")
	j := strings.LastIndex(raw, "}")
	if i < 0 || j <= i {
		return ""
	}
	return raw[i : j+1]
}
