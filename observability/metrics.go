package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vouchbank"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type engineMetrics struct {
	awards      *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	throttled   *prometheus.CounterVec
	pending     prometheus.Gauge
	sessions    prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// stay consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// EngineMetrics returns the lazily-initialised registry tracking vouch and
// redemption activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			awards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "awards_total",
				Help:      "Points awarded, segmented by reason.",
			}, []string{"reason"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "redemptions_total",
				Help:      "Reward redemptions, segmented by entry path.",
			}, []string{"via"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "vouches_throttled_total",
				Help:      "Qualifying vouch actions rejected by the cooldown.",
			}, []string{"guild"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "vouches_pending",
				Help:      "Vouches currently awaiting a decision.",
			}),
			sessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "sessions_open",
				Help:      "Interactive redemption sessions currently tracked.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.awards,
			engineRegistry.redemptions,
			engineRegistry.throttled,
			engineRegistry.pending,
			engineRegistry.sessions,
		)
	})
	return engineRegistry
}

// RecordAward counts one point award.
func (m *engineMetrics) RecordAward(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.awards.WithLabelValues(reason).Inc()
}

// RecordRedemption counts one successful redemption.
func (m *engineMetrics) RecordRedemption(via string) {
	if m == nil {
		return
	}
	if via == "" {
		via = "unspecified"
	}
	m.redemptions.WithLabelValues(via).Inc()
}

// RecordThrottled counts one cooldown rejection.
func (m *engineMetrics) RecordThrottled(guild string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(guild).Inc()
}

// SetPending updates the pending-vouch gauge.
func (m *engineMetrics) SetPending(count int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(count))
}

// SetSessions updates the open-session gauge.
func (m *engineMetrics) SetSessions(count int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(count))
}
