// Package api provides HTTP handlers for the coach API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/moodcoach/internal/coach"
	"github.com/ashureev/moodcoach/internal/domain"
)

const defaultMaxRequestBodySize = 64 << 10

// Coach is the coaching engine as seen by the transport.
type Coach interface {
	SubmitMessage(ctx context.Context, userID, message string) (*coach.TurnResult, error)
	LogMood(ctx context.Context, userID string, in domain.MoodInput) (*domain.MoodEntry, error)
	ListMoods(ctx context.Context, userID string) ([]domain.MoodEntry, error)
	GetAnalytics(ctx context.Context, userID string) (*coach.Analytics, error)
	CheckIn(ctx context.Context, userID string) (*coach.CheckIn, error)
	MarkInterventionHelpful(ctx context.Context, userID, emotion, riskLevel, intervention string) error
	History(ctx context.Context, userID string) ([]domain.ConversationTurn, error)
}

var _ Coach = (*coach.Service)(nil)

// Handler provides common handler utilities.
type Handler struct {
	coach       Coach
	limiter     *RateLimiter
	aiEnabled   bool
	maxBodySize int64
}

// NewHandler creates a new Handler. A nil limiter disables chat throttling.
func NewHandler(c Coach, limiter *RateLimiter, aiEnabled bool) *Handler {
	return &Handler{
		coach:       c,
		limiter:     limiter,
		aiEnabled:   aiEnabled,
		maxBodySize: defaultMaxRequestBodySize,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into dst and writes the error
// response itself when it fails.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// serviceError maps a coach error onto a status code.
func serviceError(w http.ResponseWriter, userID string, err error) {
	if coach.IsClientError(err) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		slog.Debug("Request canceled", "user_id", userID)
		return
	}
	slog.Error("Coach request failed", "user_id", userID, "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
