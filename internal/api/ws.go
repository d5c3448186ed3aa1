package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/moodcoach/internal/coach"
	"github.com/ashureev/moodcoach/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// ChatSocket serves GET /ws/chat, a persistent chat channel carrying the same
// turns as POST /api/chat.
type ChatSocket struct {
	coach          Coach
	limiter        *RateLimiter
	allowedOrigins []string
	isDev          bool
}

// NewChatSocket creates the websocket chat handler.
func NewChatSocket(c Coach, limiter *RateLimiter, allowedOrigins []string, isDev bool) *ChatSocket {
	return &ChatSocket{coach: c, limiter: limiter, allowedOrigins: allowedOrigins, isDev: isDev}
}

// wsInbound is a client frame.
type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsOutbound is a server frame.
type wsOutbound struct {
	Type   string            `json:"type"`
	Result *coach.TurnResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	slog.Info("Chat socket opened", "user_id", userID)
	h.readLoop(r.Context(), ws, userID)
	slog.Info("Chat socket closed", "user_id", userID)
}

func (h *ChatSocket) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		var msg wsInbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var out wsOutbound
		switch msg.Type {
		case "ping":
			out = wsOutbound{Type: "pong"}
		case "message":
			out = h.turn(ctx, userID, msg.Content)
		default:
			out = wsOutbound{Type: "error", Error: "unknown message type"}
		}

		if err := h.write(ctx, ws, out); err != nil {
			slog.Debug("WebSocket write failed", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *ChatSocket) turn(ctx context.Context, userID, content string) wsOutbound {
	if !h.limiter.Allow(userID) {
		return wsOutbound{Type: "error", Error: "rate limit exceeded"}
	}
	res, err := h.coach.SubmitMessage(ctx, userID, content)
	if err != nil {
		if coach.IsClientError(err) {
			return wsOutbound{Type: "error", Error: err.Error()}
		}
		slog.Error("Coach request failed", "user_id", userID, "error", err)
		return wsOutbound{Type: "error", Error: "internal error"}
	}
	return wsOutbound{Type: "turn", Result: res}
}

func (h *ChatSocket) write(ctx context.Context, ws *websocket.Conn, v wsOutbound) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

func (h *ChatSocket) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	if h.isDev {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
