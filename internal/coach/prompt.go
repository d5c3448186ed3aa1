package coach

import (
	"strings"

	"github.com/ashureev/moodcoach/internal/domain"
)

const basePrompt = `You are an empathetic, non-judgmental emotional eating coach.
Focus on emotional regulation, not weight loss or diet culture. Use evidence-based CBT and mindfulness techniques.

RESPONSE GUIDELINES:
- Keep responses 2-4 sentences unless the user asks for details
- Always offer one specific, actionable suggestion
- Reference the user's past patterns when relevant
- Ask a follow-up question to understand context
- Celebrate small wins and progress

INTERVENTION STRATEGIES: breathing exercises (4-7-8, box breathing), grounding (5-4-3-2-1),
physical movement, emotional expression (journaling, calling a friend), mindful alternatives
(tea, music, art), cognitive reframing.

If the user mentions self-harm, extreme restriction, purging, severe depression, substance abuse,
or asks for medical advice, encourage them to contact a professional.`

// knownTriggerHint is prepended to the history for pattern_based_support turns.
const knownTriggerHint = "User is experiencing a known trigger pattern. Focus on established coping strategies."

// SystemPrompt builds the generator's system prompt from the user's profile.
func SystemPrompt(profile PatternProfile) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	var lines []string
	if profile.DominantTrigger != "" {
		lines = append(lines, "- Primary trigger: "+profile.DominantTrigger)
	}
	if profile.DominantEmotion != "" {
		lines = append(lines, "- Most common emotion: "+profile.DominantEmotion)
	}
	if len(profile.RiskHours) > 0 {
		lines = append(lines, "- High-risk times: "+strings.Join(profile.RiskHours, ", "))
	}
	if len(lines) > 0 {
		b.WriteString("\n\nUSER CONTEXT:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

// generatorHistory trims recent turns to what the generator sees, adding a
// steering hint when the turn matches a known trigger.
func generatorHistory(recent []domain.ConversationTurn, action domain.AgentAction) []domain.ConversationTurn {
	history := make([]domain.ConversationTurn, 0, len(recent)+1)
	if action.Type == domain.ActionPatternBasedSupport {
		history = append(history, domain.ConversationTurn{Role: domain.RoleSystem, Content: knownTriggerHint})
	}
	for _, t := range recent {
		history = append(history, domain.ConversationTurn{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt})
	}
	return history
}
