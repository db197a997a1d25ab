package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"

	"github.com/gorilla/mux"
)

type fakeService struct {
	startErr error
	runs     map[string]*models.Run
	results  map[string]*models.CommunityAnalysisResult
	current  *models.Run
	started  []string
}

func (f *fakeService) StartRun(ctx context.Context, community string) (string, error) {
	f.started = append(f.started, community)
	if f.startErr != nil {
		return "run-failed", f.startErr
	}
	return "run-1", nil
}

func (f *fakeService) Status(runID string) (*models.Run, error) {
	if run, ok := f.runs[runID]; ok {
		return run, nil
	}
	return nil, errors.NewRunNotFound(runID)
}

func (f *fakeService) Result(runID string) (*models.CommunityAnalysisResult, error) {
	run, err := f.Status(runID)
	if err != nil {
		return nil, err
	}
	if !run.ResultReady {
		return nil, fmt.Errorf("%w: run %s", errors.ErrResultPending, runID)
	}
	return f.results[runID], nil
}

func (f *fakeService) AnalysisMarkdown(runID string) ([]byte, error) {
	res, err := f.Result(runID)
	if err != nil {
		return nil, err
	}
	return []byte("# " + res.Community), nil
}

func (f *fakeService) Current() (*models.Run, bool) {
	return f.current, f.current != nil
}

func (f *fakeService) List() ([]*models.Run, error) {
	var out []*models.Run
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeService) Events(runID string) ([]models.TransitionEvent, error) {
	if _, err := f.Status(runID); err != nil {
		return nil, err
	}
	return []models.TransitionEvent{
		{Seq: 1, RunID: runID, FromStatus: "not_started", ToStatus: "running", Reason: "run_started"},
		{Seq: 2, RunID: runID, JobID: "j1", ToStatus: "pending", Reason: "job_created"},
	}, nil
}

func newFakeService() *fakeService {
	now := time.Now()
	return &fakeService{
		runs: map[string]*models.Run{
			"done": {ID: "done", Community: "Old Crow", Status: models.RunStatusSucceeded, ResultReady: true, CreatedAt: now},
			"busy": {ID: "busy", Community: "Aklavik", Status: models.RunStatusRunning, CreatedAt: now, StartedAt: &now,
				Jobs: []models.Job{
					{ID: "j1", Model: "pre-2000-single_1.H2K", Status: models.JobStatusSucceeded, StartedAt: &now, FinishedAt: &now},
					{ID: "j2", Model: "pre-2000-single_2.H2K", Status: models.JobStatusRunning, StartedAt: &now},
				}},
		},
		results: map[string]*models.CommunityAnalysisResult{
			"done": {RunID: "done", Community: "Old Crow"},
		},
	}
}

func newRouter(svc RunService) *mux.Router {
	h := NewRunHandler(svc, nil, nil)
	d := NewDashboardHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/v1/runs", h.StartRun).Methods("POST")
	r.HandleFunc("/v1/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/v1/runs/current", h.GetCurrentRun).Methods("GET")
	r.HandleFunc("/v1/runs/{id}", h.GetRun).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/events", h.GetRunEvents).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/result", h.GetRunResult).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/analysis-md", h.GetRunAnalysis).Methods("GET")
	r.HandleFunc("/v1/runs/{id}/artifacts", h.GetRunArtifacts).Methods("GET")
	r.HandleFunc("/v1/communities/{community}/analysis", h.GetCommunitySummary).Methods("GET")
	r.HandleFunc("/v1/dashboard/runs", d.GetRunMetrics).Methods("GET")
	r.HandleFunc("/v1/dashboard/jobs", d.GetJobDurations).Methods("GET")
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestStartRun(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
	}{
		{"accepted", `{"community":"Old Crow"}`, nil, http.StatusAccepted},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"empty name", `{"community":"  "}`, nil, http.StatusBadRequest},
		{"path separator", `{"community":"../etc"}`, nil, http.StatusBadRequest},
		{"control char", "{\"community\":\"a\\u0001b\"}", nil, http.StatusBadRequest},
		{"dot dot", `{"community":".."}`, nil, http.StatusBadRequest},
		{"rejected by service", `{"community":"Old Crow"}`, &errors.WorkspaceError{Op: "validate", Path: "Old Crow", Err: errors.ErrInvalidCommunityName}, http.StatusBadRequest},
		{"concurrent", `{"community":"Old Crow"}`, &errors.ConcurrentRunError{ActiveRunID: "busy", ActiveCommunity: "Aklavik"}, http.StatusConflict},
		{"fatal", `{"community":"Atlantis"}`, &errors.RequirementLoadError{Community: "Atlantis", Err: errors.ErrUnknownCommunity}, http.StatusUnprocessableEntity},
		{"internal", `{"community":"Old Crow"}`, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.startErr = tt.startErr
			rec := do(t, newRouter(svc), "POST", "/v1/runs", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			body := decode(t, rec)
			switch tt.want {
			case http.StatusAccepted:
				if body["id"] != "run-1" || body["community"] != "Old Crow" {
					t.Errorf("body = %v", body)
				}
			case http.StatusConflict:
				if body["active_run_id"] != "busy" {
					t.Errorf("body = %v", body)
				}
			case http.StatusUnprocessableEntity:
				if body["run_id"] != "run-failed" || body["scope"] != "fatal" {
					t.Errorf("body = %v", body)
				}
			case http.StatusBadRequest:
				if tt.startErr == nil && len(svc.started) != 0 {
					t.Error("invalid request reached the service")
				}
			}
		})
	}
}

func TestRunQueries(t *testing.T) {
	r := newRouter(newFakeService())

	tests := []struct {
		path string
		want int
	}{
		{"/v1/runs/done", http.StatusOK},
		{"/v1/runs/missing", http.StatusNotFound},
		{"/v1/runs/done/result", http.StatusOK},
		{"/v1/runs/busy/result", http.StatusAccepted},
		{"/v1/runs/missing/result", http.StatusNotFound},
		{"/v1/runs/busy/analysis-md", http.StatusAccepted},
		{"/v1/runs/current", http.StatusNotFound},
		{"/v1/runs/done/artifacts", http.StatusOK},
		{"/v1/communities/Old%20Crow/analysis", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, r, "GET", tt.path, ""); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d: %s", tt.path, rec.Code, tt.want, rec.Body.String())
		}
	}

	rec := do(t, r, "GET", "/v1/runs/busy/result", "")
	if body := decode(t, rec); body["status"] != "pending" {
		t.Errorf("pending body = %v", body)
	}

	rec = do(t, r, "GET", "/v1/runs/done/analysis-md", "")
	if rec.Body.String() != "# Old Crow" || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown") {
		t.Errorf("markdown = %q (%s)", rec.Body.String(), rec.Header().Get("Content-Type"))
	}
}

func TestListAndEvents(t *testing.T) {
	r := newRouter(newFakeService())

	body := decode(t, do(t, r, "GET", "/v1/runs?community=old%20crow", ""))
	items := body["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["id"] != "done" {
		t.Errorf("filtered list = %v", items)
	}

	body = decode(t, do(t, r, "GET", "/v1/runs/busy/events", ""))
	events := body["items"].([]interface{})
	if len(events) != 2 {
		t.Fatalf("events = %v", events)
	}
	if ev := events[1].(map[string]interface{}); ev["job_id"] != "j1" || ev["reason"] != "job_created" {
		t.Errorf("job event = %v", ev)
	}
}

type fakeSummaries struct{}

func (fakeSummaries) LatestSummary(ctx context.Context, community string) (*models.CommunityAnalysisResult, error) {
	if community != "Old Crow" {
		return nil, &errors.NotFoundError{Kind: "analysis", ID: community}
	}
	return &models.CommunityAnalysisResult{Community: community, FilesUsed: 4}, nil
}

func TestCommunitySummary(t *testing.T) {
	h := NewRunHandler(newFakeService(), nil, fakeSummaries{})
	r := mux.NewRouter()
	r.HandleFunc("/v1/communities/{community}/analysis", h.GetCommunitySummary)

	rec := do(t, r, "GET", "/v1/communities/Old%20Crow/analysis", "")
	if rec.Code != http.StatusOK || decode(t, rec)["files_used"] != float64(4) {
		t.Errorf("summary = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, "GET", "/v1/communities/Aklavik/analysis", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing summary = %d", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	svc := newFakeService()
	svc.current = svc.runs["busy"]
	r := newRouter(svc)

	body := decode(t, do(t, r, "GET", "/v1/dashboard/runs", ""))
	runs := body["runs"].(map[string]interface{})
	if runs["running"] != float64(1) || runs["succeeded"] != float64(1) {
		t.Errorf("run counts = %v", runs)
	}
	current := body["current"].(map[string]interface{})
	if current["done"] != float64(1) || current["total"] != float64(2) {
		t.Errorf("current = %v", current)
	}

	if rec := do(t, r, "GET", "/v1/dashboard/runs?start_date=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", rec.Code)
	}

	body = decode(t, do(t, r, "GET", "/v1/dashboard/jobs?limit=1", ""))
	if items := body["items"].([]interface{}); len(items) != 1 || body["run_id"] != "busy" {
		t.Errorf("jobs = %v", body)
	}
}
