package monitoring

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

func TestMetricsFromTransitions(t *testing.T) {
	m := NewMetrics()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.OnTransition(models.TransitionEvent{RunID: "r", ToStatus: "running", At: t0})
	m.OnTransition(models.TransitionEvent{RunID: "r", JobID: "j1", ToStatus: "running", At: t0})
	m.OnTransition(models.TransitionEvent{RunID: "r", JobID: "j1", ToStatus: "succeeded", At: t0.Add(5 * time.Second)})
	m.OnTransition(models.TransitionEvent{RunID: "r", JobID: "j2", ToStatus: "running", At: t0})
	m.OnTransition(models.TransitionEvent{RunID: "r", JobID: "j2", ToStatus: "failed", At: t0.Add(time.Second)})

	if v := testutil.ToFloat64(m.activeRuns); v != 1 {
		t.Errorf("active runs = %v, want 1", v)
	}
	m.OnTransition(models.TransitionEvent{RunID: "r", ToStatus: "completed_with_errors", At: t0})

	if v := testutil.ToFloat64(m.jobsTotal.WithLabelValues("succeeded")); v != 1 {
		t.Errorf("succeeded jobs = %v", v)
	}
	if v := testutil.ToFloat64(m.jobsTotal.WithLabelValues("failed")); v != 1 {
		t.Errorf("failed jobs = %v", v)
	}
	if v := testutil.ToFloat64(m.runsTotal.WithLabelValues("completed_with_errors")); v != 1 {
		t.Errorf("runs = %v", v)
	}
	if v := testutil.ToFloat64(m.activeRuns); v != 0 {
		t.Errorf("active runs = %v, want 0", v)
	}
	if n := testutil.CollectAndCount(m.jobDuration); n != 1 {
		t.Errorf("duration series = %d", n)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	h := m.WrapHandler("/v1/runs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `http_requests_total{route="/v1/runs",status="409"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
	}

	var nilMetrics *Metrics
	nilMetrics.OnTransition(models.TransitionEvent{ToStatus: "running"})
}

type fixedSource struct{ run *models.Run }

func (f fixedSource) Current() (*models.Run, bool) { return f.run, f.run != nil }

func TestRunMonitorFlagsStalledJobs(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	long := now.Add(-2 * time.Hour)
	short := now.Add(-time.Minute)
	run := &models.Run{
		ID: "r", Community: "Old Crow", Status: models.RunStatusRunning, StartedAt: &long,
		Jobs: []models.Job{
			{ID: "a", Model: "a.H2K", Status: models.JobStatusRunning, StartedAt: &long},
			{ID: "b", Model: "b.H2K", Status: models.JobStatusRunning, StartedAt: &short},
			{ID: "c", Model: "c.H2K", Status: models.JobStatusPending},
		},
	}

	var buf bytes.Buffer
	rm := NewRunMonitor(fixedSource{run}, time.Minute, time.Hour, logging.NewWriterLogger(&buf, logging.LevelDebug))
	rm.now = func() time.Time { return now }

	stalled := rm.Check()
	if len(stalled) != 1 || stalled[0].ID != "a" {
		t.Fatalf("stalled = %+v", stalled)
	}
	if !strings.Contains(buf.String(), "run progress") || !strings.Contains(buf.String(), "job running longer than expected") {
		t.Errorf("log output = %s", buf.String())
	}

	if got := NewRunMonitor(fixedSource{}, 0, time.Hour, nil).Check(); got != nil {
		t.Errorf("idle monitor returned %v", got)
	}
}
