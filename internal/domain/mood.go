package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intensity bounds for a mood entry, inclusive.
const (
	MinIntensity = 1
	MaxIntensity = 10
)

// MoodEntry is one timestamped self-report. Entries are immutable once created.
type MoodEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Emotion   string       `json:"emotion"`
	Intensity int          `json:"intensity"`
	Trigger   string       `json:"trigger"`
	Context   string       `json:"context,omitempty"`
	CreatedAt time.Time    `json:"timestamp"`
	Hour      int          `json:"hour"`
	Weekday   time.Weekday `json:"weekday"`
}

// MoodInput carries the user-supplied fields of a mood entry.
type MoodInput struct {
	Emotion   string `json:"emotion"`
	Intensity int    `json:"intensity"`
	Trigger   string `json:"trigger"`
	Context   string `json:"context,omitempty"`
}

// Validate checks required fields and the intensity range.
func (in MoodInput) Validate() error {
	if err := requireField("emotion", in.Emotion); err != nil {
		return err
	}
	if err := requireField("trigger", in.Trigger); err != nil {
		return err
	}
	if in.Intensity < MinIntensity || in.Intensity > MaxIntensity {
		return &ValidationError{
			Field:  "intensity",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinIntensity, MaxIntensity, in.Intensity),
		}
	}
	return nil
}

// NewMoodEntry validates the input and builds an entry stamped at the given time.
// Hour and Weekday are derived from at in its own location.
func NewMoodEntry(userID string, in MoodInput, at time.Time) (*MoodEntry, error) {
	if err := requireField("user_id", userID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &MoodEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Emotion:   strings.TrimSpace(in.Emotion),
		Intensity: in.Intensity,
		Trigger:   strings.TrimSpace(in.Trigger),
		Context:   strings.TrimSpace(in.Context),
		CreatedAt: at,
		Hour:      at.Hour(),
		Weekday:   at.Weekday(),
	}, nil
}
