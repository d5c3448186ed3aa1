package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
	"github.com/ashureev/moodcoach/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the retention worker prune while requests keep writing.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mood_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		emotion TEXT NOT NULL,
		intensity INTEGER NOT NULL CHECK (intensity BETWEEN 1 AND 10),
		trigger_label TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		hour INTEGER NOT NULL,
		weekday INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mood_entries_user ON mood_entries(user_id, created_at);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		emotion TEXT NOT NULL DEFAULT '',
		intensity INTEGER NOT NULL DEFAULT 0,
		risk_level TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_turns_user ON conversation_turns(user_id, id);

	CREATE TABLE IF NOT EXISTS intervention_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		emotion TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		intervention TEXT NOT NULL,
		helpful INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_intervention_records_user ON intervention_records(user_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.exec(ctx, "upsert user", query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// InsertMoodEntry appends a mood entry.
func (s *SQLiteStore) InsertMoodEntry(ctx context.Context, entry *domain.MoodEntry) error {
	query := `
	INSERT INTO mood_entries (id, user_id, emotion, intensity, trigger_label, context, hour, weekday, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.exec(ctx, "insert mood entry", query,
		entry.ID, entry.UserID, entry.Emotion, entry.Intensity, entry.Trigger,
		entry.Context, entry.Hour, int(entry.Weekday), entry.CreatedAt.Unix(),
	)
}

// ListMoodEntries returns all of a user's mood entries, oldest first.
func (s *SQLiteStore) ListMoodEntries(ctx context.Context, userID string) ([]domain.MoodEntry, error) {
	query := `
		SELECT id, user_id, emotion, intensity, trigger_label, context, hour, weekday, created_at
		FROM mood_entries WHERE user_id = ?
		ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query mood entries: %w", err)
	}
	defer closeRows(rows, "mood entries")

	entries := []domain.MoodEntry{}
	for rows.Next() {
		var e domain.MoodEntry
		var weekday int
		var createdAt int64
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Emotion, &e.Intensity, &e.Trigger,
			&e.Context, &e.Hour, &weekday, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan mood entry row: %w", err)
		}
		e.Weekday = time.Weekday(weekday)
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood entries: %w", err)
	}
	return entries, nil
}

// AppendTurns appends conversation turns in a single transaction.
func (s *SQLiteStore) AppendTurns(ctx context.Context, userID string, turns []domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	query := `
	INSERT INTO conversation_turns (user_id, role, content, emotion, intensity, risk_level, action_type, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, s.retry, "append turns", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, t := range turns {
			if _, err := tx.ExecContext(ctx, query,
				userID, string(t.Role), t.Content, t.Emotion, t.Intensity,
				string(t.RiskLevel), string(t.ActionType), t.CreatedAt.Unix(),
			); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					slog.Warn("failed to roll back turn insert", "error", rbErr)
				}
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("append turns: %w", err)
	}
	return nil
}

// ListRecentTurns returns up to limit of the user's latest turns, oldest first.
func (s *SQLiteStore) ListRecentTurns(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	query := `
		SELECT role, content, emotion, intensity, risk_level, action_type, created_at
		FROM (
			SELECT id, role, content, emotion, intensity, risk_level, action_type, created_at
			FROM conversation_turns WHERE user_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer closeRows(rows, "turns")

	turns := []domain.ConversationTurn{}
	for rows.Next() {
		var t domain.ConversationTurn
		var role, risk, action string
		var createdAt int64
		if err := rows.Scan(&role, &t.Content, &t.Emotion, &t.Intensity, &risk, &action, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = domain.Role(role)
		t.RiskLevel = domain.RiskLevel(risk)
		t.ActionType = domain.ActionType(action)
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// InsertInterventionRecord appends a reinforcement record.
func (s *SQLiteStore) InsertInterventionRecord(ctx context.Context, userID string, rec *domain.InterventionRecord) error {
	query := `
	INSERT INTO intervention_records (user_id, emotion, risk_level, intervention, helpful, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	return s.exec(ctx, "insert intervention record", query,
		userID, rec.Emotion, string(rec.RiskLevel), rec.Intervention, rec.Helpful, rec.CreatedAt.Unix(),
	)
}

// ListInterventionRecords returns a user's reinforcement records, oldest first.
func (s *SQLiteStore) ListInterventionRecords(ctx context.Context, userID string) ([]domain.InterventionRecord, error) {
	query := `
		SELECT emotion, risk_level, intervention, helpful, created_at
		FROM intervention_records WHERE user_id = ?
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query intervention records: %w", err)
	}
	defer closeRows(rows, "intervention records")

	records := []domain.InterventionRecord{}
	for rows.Next() {
		var rec domain.InterventionRecord
		var risk string
		var createdAt int64
		if err := rows.Scan(&rec.Emotion, &risk, &rec.Intervention, &rec.Helpful, &createdAt); err != nil {
			return nil, fmt.Errorf("scan intervention record row: %w", err)
		}
		rec.RiskLevel = domain.RiskLevel(risk)
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervention records: %w", err)
	}
	return records, nil
}

// PruneTurns keeps only the latest keep turns per user.
func (s *SQLiteStore) PruneTurns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("prune turns: keep must be > 0, got %d", keep)
	}
	query := `
	DELETE FROM conversation_turns WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY id DESC) AS rn
			FROM conversation_turns
		) WHERE rn > ?
	)`

	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "prune turns", func() error {
		result, err := s.db.ExecContext(ctx, query, keep)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}
	return deleted, nil
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	err := shared.RetryOnConflict(ctx, s.retry, op, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

var _ Repository = (*SQLiteStore)(nil)
