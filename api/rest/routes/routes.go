package routes

import (
	"io"
	"net/http"

	"community-orchestrator/api/rest/handlers"
	"community-orchestrator/core/monitoring"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Deps are the collaborators served by the router. Artifacts, Summaries
// and Metrics are optional.
type Deps struct {
	Service   handlers.RunService
	Artifacts handlers.ArtifactLister
	Summaries handlers.SummaryReader
	Metrics   *monitoring.Metrics
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, d Deps) {
	runHandler := handlers.NewRunHandler(d.Service, d.Artifacts, d.Summaries)
	dashboardHandler := handlers.NewDashboardHandler(d.Service)

	api := r.PathPrefix("/v1").Subrouter()
	handle := func(path, method, route string, fn http.HandlerFunc) {
		var h http.Handler = fn
		if d.Metrics != nil {
			h = d.Metrics.WrapHandler(route, h)
		}
		api.Handle(path, h).Methods(method)
	}

	// Run endpoints
	handle("/runs", "POST", "start_run", runHandler.StartRun)
	handle("/runs", "GET", "list_runs", runHandler.ListRuns)
	handle("/runs/current", "GET", "current_run", runHandler.GetCurrentRun)
	handle("/runs/{id}", "GET", "get_run", runHandler.GetRun)
	handle("/runs/{id}/events", "GET", "run_events", runHandler.GetRunEvents)
	handle("/runs/{id}/result", "GET", "run_result", runHandler.GetRunResult)
	handle("/runs/{id}/analysis-md", "GET", "run_analysis", runHandler.GetRunAnalysis)
	handle("/runs/{id}/artifacts", "GET", "run_artifacts", runHandler.GetRunArtifacts)
	handle("/communities/{community}/analysis", "GET", "community_summary", runHandler.GetCommunitySummary)

	// Dashboard endpoints
	handle("/dashboard/runs", "GET", "dashboard_runs", dashboardHandler.GetRunMetrics)
	handle("/dashboard/jobs", "GET", "dashboard_jobs", dashboardHandler.GetJobDurations)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
	}
}

// NewHandler returns the router wrapped with request logging and panic recovery.
func NewHandler(accessLog io.Writer, d Deps) http.Handler {
	r := mux.NewRouter()
	SetupRoutes(r, d)
	return gorillahandlers.RecoveryHandler(gorillahandlers.PrintRecoveryStack(true))(
		gorillahandlers.CombinedLoggingHandler(accessLog, r),
	)
}
