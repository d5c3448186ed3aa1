package domain

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is one message in a user's coaching history.
// The analysis tags are only set on assistant turns.
type ConversationTurn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"timestamp"`
	Emotion    string     `json:"emotion,omitempty"`
	Intensity  int        `json:"intensity,omitempty"`
	RiskLevel  RiskLevel  `json:"risk_level,omitempty"`
	ActionType ActionType `json:"action_type,omitempty"`
}

// InterventionRecord marks a coping suggestion the user found helpful.
type InterventionRecord struct {
	Emotion      string    `json:"emotion"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Intervention string    `json:"intervention"`
	Helpful      bool      `json:"helpful"`
	CreatedAt    time.Time `json:"created_at"`
}
