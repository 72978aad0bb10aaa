// Package metrics exposes Prometheus counters for the control loop: wire
// commands, schedule resolutions, status polls, applied transitions and
// usage sessions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grayhome"

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	dispatches    *prometheus.CounterVec
	schedules     *prometheus.CounterVec
	polls         *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	lastTickEpoch *prometheus.GaugeVec
}

// New creates the collectors on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Wire commands sent to devices by device type and outcome.",
		}, []string{"device_type", "outcome"}),
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_resolutions_total",
			Help:      "Schedule occurrences resolved by result (executed, skipped, failed).",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Controller status polls by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Device transitions applied by source.",
		}, []string{"source"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_sessions_total",
			Help:      "Usage session events by kind (opened, billed, anomaly, stale).",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		lastTickEpoch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_last_tick_timestamp_seconds",
			Help:      "Unix time of the last completed tick per background loop.",
		}, []string{"loop"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatches,
		m.schedules,
		m.polls,
		m.transitions,
		m.sessions,
		m.httpRequests,
		m.httpDuration,
		m.lastTickEpoch,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DispatchOutcome counts one wire command.
func (m *Metrics) DispatchOutcome(deviceType, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(deviceType, outcome).Inc()
}

// ScheduleResolved counts one resolved schedule occurrence.
func (m *Metrics) ScheduleResolved(result string) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(result).Inc()
}

// PollResult counts one controller poll.
func (m *Metrics) PollResult(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

// TransitionApplied counts one committed device transition.
func (m *Metrics) TransitionApplied(source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(source).Inc()
}

// SessionOpened counts a usage session start.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("opened").Inc()
}

// SessionClosed counts a usage session end by close reason.
func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(reason).Inc()
}

// TickCompleted records that a background loop finished a tick at t.
func (m *Metrics) TickCompleted(loop string, t time.Time) {
	if m == nil {
		return
	}
	m.lastTickEpoch.WithLabelValues(loop).Set(float64(t.Unix()))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
