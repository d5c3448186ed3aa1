package coach

import (
	"strings"
)

// CrisisCategory names why a message was escalated.
type CrisisCategory string

const (
	CategoryCrisis            CrisisCategory = "crisis"
	CategorySevereRestriction CrisisCategory = "severe_restriction"
)

// Resource is a human support contact returned on escalation.
type Resource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// CrisisResult is the outcome of a safety check.
type CrisisResult struct {
	RequiresEscalation bool           `json:"requiresEscalation"`
	Category           CrisisCategory `json:"category,omitempty"`
	Resources          []Resource     `json:"resources,omitempty"`
}

// Matched as substrings of the lowercased message.
var selfHarmTerms = []string{
	"kill myself",
	"killing myself",
	"suicide",
	"suicidal",
	"end my life",
	"end it all",
	"want to die",
	"better off dead",
	"hurt myself",
	"hurting myself",
	"self-harm",
	"self harm",
	"cut myself",
	"cutting myself",
	"no reason to live",
}

var severeRestrictionTerms = []string{
	"starve myself",
	"starving myself",
	"stop eating completely",
	"not eating at all",
	"haven't eaten in days",
	"havent eaten in days",
	"refuse to eat",
	"make myself throw up",
	"make myself sick",
	"throw up after eating",
	"purge",
	"purging",
	"laxatives",
}

var crisisResources = []Resource{
	{Name: "988 Suicide & Crisis Lifeline", Contact: "Call or text 988 (US)"},
	{Name: "Crisis Text Line", Contact: "Text HOME to 741741"},
	{Name: "Emergency services", Contact: "Call 911 or your local emergency number"},
}

var restrictionResources = []Resource{
	{Name: "ANAD Eating Disorder Helpline", Contact: "Call 1-888-375-7767"},
	{Name: "Crisis Text Line", Contact: "Text NEDA to 741741"},
	{Name: "988 Suicide & Crisis Lifeline", Contact: "Call or text 988 (US)"},
}

// Escalation messages shown instead of a coaching reply.
const (
	crisisMessage = "I'm really glad you told me. What you're feeling sounds serious, and you deserve " +
		"support from a real person right now. Please reach out to one of these resources."
	restrictionMessage = "Thank you for sharing this with me. Restricting or purging can put your health " +
		"at real risk, and talking with someone trained to help can make a difference. Please reach out to one of these resources."
)

// CheckCrisis runs the keyword safety check. Self-harm terms take priority
// over restriction terms when both match.
func CheckCrisis(message string) CrisisResult {
	text := strings.ToLower(message)
	switch {
	case containsAny(text, selfHarmTerms):
		return CrisisResult{
			RequiresEscalation: true,
			Category:           CategoryCrisis,
			Resources:          cloneResources(crisisResources),
		}
	case containsAny(text, severeRestrictionTerms):
		return CrisisResult{
			RequiresEscalation: true,
			Category:           CategorySevereRestriction,
			Resources:          cloneResources(restrictionResources),
		}
	default:
		return CrisisResult{}
	}
}

func escalationMessage(category CrisisCategory) string {
	if category == CategorySevereRestriction {
		return restrictionMessage
	}
	return crisisMessage
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func cloneResources(src []Resource) []Resource {
	out := make([]Resource, len(src))
	copy(out, src)
	return out
}
