// Package monitoring exposes run metrics to Prometheus and watches the
// active run for stalled jobs.
package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"community-orchestrator/core/models"
)

// Metrics records run, job and HTTP metrics. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	jobsTotal    *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	activeRuns   prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time // job id -> running since
}

// NewMetrics creates metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_runs_total",
			Help: "Runs that reached a terminal status, by status.",
		}, []string{"status"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_jobs_total",
			Help: "Jobs that reached a terminal status, by status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_job_duration_seconds",
			Help:    "Wall-clock time from job start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_active_runs",
			Help: "Runs with jobs still executing.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		started: make(map[string]time.Time),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.jobsTotal,
		m.jobDuration,
		m.activeRuns,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OnTransition updates counters from a recorded transition.
func (m *Metrics) OnTransition(ev models.TransitionEvent) {
	if m == nil {
		return
	}

	if ev.JobID == "" {
		switch {
		case ev.ToStatus == string(models.RunStatusRunning):
			m.activeRuns.Inc()
		case models.RunStatus(ev.ToStatus).IsTerminal():
			m.runsTotal.WithLabelValues(ev.ToStatus).Inc()
			m.activeRuns.Dec()
		}
		return
	}

	switch models.JobStatus(ev.ToStatus) {
	case models.JobStatusRunning:
		m.mu.Lock()
		m.started[ev.JobID] = ev.At
		m.mu.Unlock()
	case models.JobStatusSucceeded, models.JobStatusFailed:
		m.jobsTotal.WithLabelValues(ev.ToStatus).Inc()
		m.mu.Lock()
		since, ok := m.started[ev.JobID]
		delete(m.started, ev.JobID)
		m.mu.Unlock()
		if ok {
			m.jobDuration.Observe(ev.At.Sub(since).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request counts and durations under route.
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

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
