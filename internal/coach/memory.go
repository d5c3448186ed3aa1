package coach

import (
	"github.com/ashureev/moodcoach/internal/domain"
)

// defaultHistoryLimit is how many turns a Memory retains when no limit is given.
const defaultHistoryLimit = 50

// Memory is a bounded, ordered conversation history. When it grows past its
// limit the oldest turns are dropped. It is not safe for concurrent use; the
// owning user state serializes access.
type Memory struct {
	turns []domain.ConversationTurn
	limit int
}

// NewMemory creates a memory that retains at most limit turns.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Memory{limit: limit}
}

// Append adds turns in order and evicts the oldest beyond the limit.
func (m *Memory) Append(turns ...domain.ConversationTurn) {
	m.turns = append(m.turns, turns...)
	if over := len(m.turns) - m.limit; over > 0 {
		kept := make([]domain.ConversationTurn, m.limit)
		copy(kept, m.turns[over:])
		m.turns = kept
	}
}

// Recent returns a copy of the last n turns, oldest first.
func (m *Memory) Recent(n int) []domain.ConversationTurn {
	if n <= 0 {
		return []domain.ConversationTurn{}
	}
	start := len(m.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.ConversationTurn, len(m.turns)-start)
	copy(out, m.turns[start:])
	return out
}

// All returns a copy of every retained turn.
func (m *Memory) All() []domain.ConversationTurn {
	return m.Recent(len(m.turns))
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	return len(m.turns)
}
