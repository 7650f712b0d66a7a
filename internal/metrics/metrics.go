// Package metrics provides the Prometheus collectors of the auth client.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gotrue_client"

// Metrics groups the client's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RefreshAttempts counts calls to the refresh endpoint, retries included.
	RefreshAttempts prometheus.Counter
	// RefreshResults counts completed refresh operations by outcome (success, auth_error, error).
	RefreshResults *prometheus.CounterVec
	// RefreshJoined counts callers that shared an in-flight refresh instead of starting one.
	RefreshJoined prometheus.Counter
	// Ticks counts auto refresh ticks by result (skipped, refreshed, failed).
	Ticks *prometheus.CounterVec
	// Events counts auth state notifications by event name.
	Events *prometheus.CounterVec
	// SubscriberErrors counts errors returned or panics raised by subscriber callbacks.
	SubscriberErrors prometheus.Counter
	// Requests counts backend requests by method, path and status code.
	Requests *prometheus.CounterVec
	// RequestDuration measures backend request latency in seconds.
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Collectors already
// registered by another client on the same registry are reused. A nil reg
// leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_attempts_total",
			Help:      "Total refresh token requests sent",
		}),
		RefreshResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_results_total",
			Help:      "Total refresh operations by outcome",
		}, []string{"outcome"}),
		RefreshJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_joined_total",
			Help:      "Total callers that joined an in-flight refresh",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_refresh_ticks_total",
			Help:      "Total auto refresh ticks by result",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Total auth state change notifications by event",
		}, []string{"event"}),
		SubscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_errors_total",
			Help:      "Total subscriber callback failures",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests sent to the auth backend",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of auth backend requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "path"}),
	}
	if reg == nil {
		return m
	}

	m.RefreshAttempts = register(reg, m.RefreshAttempts)
	m.RefreshResults = register(reg, m.RefreshResults)
	m.RefreshJoined = register(reg, m.RefreshJoined)
	m.Ticks = register(reg, m.Ticks)
	m.Events = register(reg, m.Events)
	m.SubscriberErrors = register(reg, m.SubscriberErrors)
	m.Requests = register(reg, m.Requests)
	m.RequestDuration = register(reg, m.RequestDuration)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) RefreshAttempt() {
	if m == nil {
		return
	}
	m.RefreshAttempts.Inc()
}

func (m *Metrics) RefreshResult(outcome string) {
	if m == nil {
		return
	}
	m.RefreshResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshJoin() {
	if m == nil {
		return
	}
	m.RefreshJoined.Inc()
}

func (m *Metrics) Tick(result string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(result).Inc()
}

func (m *Metrics) Event(event string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(event).Inc()
}

func (m *Metrics) SubscriberError() {
	if m == nil {
		return
	}
	m.SubscriberErrors.Inc()
}

// Request records a backend call. status is 0 when no response was received.
func (m *Metrics) Request(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
