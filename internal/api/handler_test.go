//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/moodcoach/internal/coach"
	"github.com/ashureev/moodcoach/internal/identity"
	"github.com/ashureev/moodcoach/internal/store"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

// newTestRouter wires a real service over a temp SQLite store. Requests carry
// the user from the X-Test-User header.
func newTestRouter(t *testing.T, limiter *RateLimiter) http.Handler {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := coach.NewService(repo, nil, nil, coach.Options{Location: time.UTC})
	h := NewHandler(svc, limiter, false)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u := r.Header.Get("X-Test-User"); u != "" {
				r = r.WithContext(identity.WithUserID(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHealthHandler(repo).RegisterHealth(r)
	h.RegisterRoutes(r)
	r.Get("/ws/chat", NewChatSocket(svc, limiter, nil, true).ServeHTTP)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestChat(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/chat", "u1", `{"message":"I'm so stressed about this deadline"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]any](t, rec)
	if got["emotion"] != "stress" {
		t.Fatalf("expected fallback emotion stress, got %v", got["emotion"])
	}
	if got["intervention"] != coach.BreathingFallback {
		t.Fatalf("expected breathing fallback without a generator, got %v", got["intervention"])
	}
	if _, ok := got["agentAction"]; !ok {
		t.Fatal("expected agentAction in response")
	}

	rec = do(t, h, http.MethodGet, "/api/history", "u1", "")
	hist := decode[map[string][]map[string]any](t, rec)
	if len(hist["turns"]) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(hist["turns"]))
	}
}

func TestChat_Escalation(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t, nil), http.MethodPost, "/api/chat", "u1", `{"message":"I want to kill myself"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["requiresEscalation"] != true || got["category"] != "crisis" {
		t.Fatalf("expected crisis escalation, got %v", got)
	}
	if _, ok := got["agentAction"]; ok {
		t.Fatal("expected no agentAction on escalation")
	}
}

func TestChat_BadRequests(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil)
	tests := []struct {
		name string
		user string
		body string
		code int
	}{
		{"no identity", "", `{"message":"hi"}`, http.StatusUnauthorized},
		{"empty message", "u1", `{"message":"  "}`, http.StatusBadRequest},
		{"invalid json", "u1", `{"message":`, http.StatusBadRequest},
		{"too large", "u1", `{"message":"` + strings.Repeat("a", defaultMaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/chat", tt.user, tt.body); rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)
	h := newTestRouter(t, limiter)

	if rec := do(t, h, http.MethodPost, "/api/chat", "u1", `{"message":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/chat", "u1", `{"message":"hi"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/chat", "u2", `{"message":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected other user to pass, got %d", rec.Code)
	}
}

func TestMood(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/mood", "u1", `{"emotion":"sad","intensity":11,"trigger":"rain"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for intensity 11, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "intensity") {
		t.Fatalf("expected field in error, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/mood", "u1", `{"emotion":"sad","intensity":10,"trigger":"rain"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/mood", "u1", "")
	list := decode[map[string][]map[string]any](t, rec)
	if len(list["entries"]) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list["entries"]))
	}

	rec = do(t, h, http.MethodGet, "/api/analytics", "u1", "")
	analytics := decode[map[string]any](t, rec)
	if analytics["totalEntries"] != float64(1) {
		t.Fatalf("expected 1 total entry, got %v", analytics["totalEntries"])
	}
}

func TestAnalytics_NoData(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/api/analytics", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if msg, _ := got["message"].(string); !strings.HasPrefix(msg, "No data yet") {
		t.Fatalf("expected no-data message, got %v", got["message"])
	}
}

func TestCheckInAndHelpful(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/checkin", "u1", "")
	if got := decode[map[string]string](t, rec); got["type"] != coach.CheckInGeneral {
		t.Fatalf("expected general check-in, got %v", got)
	}

	rec = do(t, h, http.MethodPost, "/api/interventions/helpful", "u1", `{"emotion":"sad","intervention":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank intervention, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/interventions/helpful", "u1", `{"emotion":"sad","riskLevel":"low","intervention":"Call a friend"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", got)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Minute)
	t.Cleanup(rl.Stop)
	now := time.Unix(1_750_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("expected first two requests to pass")
	}
	if rl.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("expected request after window to pass")
	}

	now = now.Add(2 * time.Minute)
	rl.evict()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.requests) != 0 {
		t.Fatalf("expected evicted keys, got %d", len(rl.requests))
	}
}
