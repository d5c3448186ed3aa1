package coach

import (
	"context"

	"github.com/ashureev/moodcoach/internal/domain"
)

// Classifier reads the emotional content of a message. priorPatterns is the
// user's current profile, offered as context.
type Classifier interface {
	Classify(ctx context.Context, message string, priorPatterns PatternProfile) (domain.Analysis, error)
}

// Generator writes the coach's reply from a system prompt, recent history, and
// the new message.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []domain.ConversationTurn, message string) (string, error)
}
