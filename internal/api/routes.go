package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/moodcoach/internal/domain"
	"github.com/ashureev/moodcoach/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes registers the coaching routes. They expect identity middleware upstream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Post("/chat", h.Chat)
		r.Get("/history", h.History)
		r.Post("/mood", h.LogMood)
		r.Get("/mood", h.ListMoods)
		r.Get("/analytics", h.Analytics)
		r.Get("/checkin", h.CheckIn)
		r.Post("/interventions/helpful", h.MarkHelpful)
	})
}

// GetMe returns the current user's identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"user_id":  userID,
		"username": identity.UsernameFromContext(r.Context()),
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.aiEnabled,
	})
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	slog.Info("Chat request",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)
	res, err := h.coach.SubmitMessage(r.Context(), userID, req.Message)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// History handles GET /api/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	turns, err := h.coach.History(r.Context(), userID)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

// LogMood handles POST /api/mood.
func (h *Handler) LogMood(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in domain.MoodInput
	if !h.decodeJSON(w, r, &in) {
		return
	}
	entry, err := h.coach.LogMood(r.Context(), userID, in)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]interface{}{"success": true, "entry": entry})
}

// ListMoods handles GET /api/mood.
func (h *Handler) ListMoods(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	entries, err := h.coach.ListMoods(r.Context(), userID)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Analytics handles GET /api/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	analytics, err := h.coach.GetAnalytics(r.Context(), userID)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, analytics)
}

// CheckIn handles GET /api/checkin.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	checkIn, err := h.coach.CheckIn(r.Context(), userID)
	if err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, checkIn)
}

// HelpfulRequest is the body of POST /api/interventions/helpful.
type HelpfulRequest struct {
	Emotion      string `json:"emotion"`
	RiskLevel    string `json:"riskLevel"`
	Intervention string `json:"intervention"`
}

// MarkHelpful handles POST /api/interventions/helpful.
func (h *Handler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req HelpfulRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.coach.MarkInterventionHelpful(r.Context(), userID, req.Emotion, req.RiskLevel, req.Intervention); err != nil {
		serviceError(w, userID, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}
