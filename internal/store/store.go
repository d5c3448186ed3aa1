// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
)

// Repository defines the interface for persisting coaching data.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// InsertMoodEntry appends a mood entry.
	InsertMoodEntry(ctx context.Context, entry *domain.MoodEntry) error

	// ListMoodEntries returns all of a user's mood entries, oldest first.
	ListMoodEntries(ctx context.Context, userID string) ([]domain.MoodEntry, error)

	// AppendTurns appends conversation turns in order.
	AppendTurns(ctx context.Context, userID string, turns []domain.ConversationTurn) error

	// ListRecentTurns returns up to limit of the user's latest turns, oldest first.
	ListRecentTurns(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error)

	// InsertInterventionRecord appends a reinforcement record.
	InsertInterventionRecord(ctx context.Context, userID string, rec *domain.InterventionRecord) error

	// ListInterventionRecords returns a user's reinforcement records, oldest first.
	ListInterventionRecords(ctx context.Context, userID string) ([]domain.InterventionRecord, error)

	// PruneTurns keeps only the latest keep turns per user and returns how many were removed.
	PruneTurns(ctx context.Context, keep int) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
