// Package metrics exposes Prometheus instrumentation for the coaching pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the coach collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// TurnsTotal counts completed chat turns by action type.
	TurnsTotal *prometheus.CounterVec
	// EscalationsTotal counts crisis short-circuits by category.
	EscalationsTotal *prometheus.CounterVec
	// FallbacksTotal counts external calls replaced by local fallbacks.
	FallbacksTotal *prometheus.CounterVec
	// ExternalDuration observes classifier/generator latency.
	ExternalDuration *prometheus.HistogramVec
	// MoodEntriesTotal counts accepted mood entries.
	MoodEntriesTotal prometheus.Counter
	// ValidationErrorsTotal counts rejected inputs.
	ValidationErrorsTotal prometheus.Counter
	// CachedUsers tracks how many per-user states are resident.
	CachedUsers prometheus.Gauge
}

// New registers the coach metrics on a fresh registry, so tests can create as
// many instances as they like without duplicate-registration panics.
//
// Metrics:
//   - coach_turns_total{action}
//   - coach_escalations_total{category}
//   - coach_fallbacks_total{call}
//   - coach_external_duration_seconds{call}
//   - coach_mood_entries_total
//   - coach_validation_errors_total
//   - coach_cached_users
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_turns_total",
				Help: "Total number of chat turns processed, by agent action",
			},
			[]string{"action"},
		),
		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_escalations_total",
				Help: "Total number of messages escalated to crisis resources",
			},
			[]string{"category"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_fallbacks_total",
				Help: "Total number of external calls replaced by a local fallback",
			},
			[]string{"call"}, // "classify" or "generate"
		),
		ExternalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coach_external_duration_seconds",
				Help:    "Latency of classifier and generator calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"call"},
		),
		MoodEntriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_mood_entries_total",
			Help: "Total number of mood entries logged",
		}),
		ValidationErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coach_validation_errors_total",
			Help: "Total number of rejected inputs",
		}),
		CachedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coach_cached_users",
			Help: "Number of per-user states currently held in memory",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Turn records a processed turn.
func (m *Metrics) Turn(action string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(action).Inc()
}

// Escalation records a crisis short-circuit.
func (m *Metrics) Escalation(category string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(category).Inc()
}

// Fallback records a local fallback for the named external call.
func (m *Metrics) Fallback(call string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(call).Inc()
}

// ObserveExternal records how long an external call took.
func (m *Metrics) ObserveExternal(call string, started time.Time) {
	if m == nil {
		return
	}
	m.ExternalDuration.WithLabelValues(call).Observe(time.Since(started).Seconds())
}

// MoodLogged records an accepted mood entry.
func (m *Metrics) MoodLogged() {
	if m == nil {
		return
	}
	m.MoodEntriesTotal.Inc()
}

// ValidationFailed records a rejected input.
func (m *Metrics) ValidationFailed() {
	if m == nil {
		return
	}
	m.ValidationErrorsTotal.Inc()
}

// SetCachedUsers reports the resident per-user state count.
func (m *Metrics) SetCachedUsers(n int) {
	if m == nil {
		return
	}
	m.CachedUsers.Set(float64(n))
}
