package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
	"community-orchestrator/core/workspace"

	"github.com/gorilla/mux"
)

// RunService is the run query interface served over HTTP.
type RunService interface {
	StartRun(ctx context.Context, community string) (string, error)
	Status(runID string) (*models.Run, error)
	Result(runID string) (*models.CommunityAnalysisResult, error)
	AnalysisMarkdown(runID string) ([]byte, error)
	Current() (*models.Run, bool)
	List() ([]*models.Run, error)
	Events(runID string) ([]models.TransitionEvent, error)
}

// ArtifactLister lists published artifacts of a run.
type ArtifactLister interface {
	GetRunArtifacts(ctx context.Context, runID string, artifactType *models.ArtifactType) ([]models.Artifact, error)
}

// SummaryReader returns the latest exported summary of a community.
type SummaryReader interface {
	LatestSummary(ctx context.Context, community string) (*models.CommunityAnalysisResult, error)
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	service   RunService
	artifacts ArtifactLister
	summaries SummaryReader
}

// NewRunHandler creates a new run handler. artifacts and summaries may be
// nil when the Postgres export is disabled.
func NewRunHandler(service RunService, artifacts ArtifactLister, summaries SummaryReader) *RunHandler {
	return &RunHandler{service: service, artifacts: artifacts, summaries: summaries}
}

// StartRunRequest represents the request to start a run
type StartRunRequest struct {
	Community string `json:"community"`
}

// StartRunResponse represents the response after starting a run
type StartRunResponse struct {
	ID        string `json:"id"`
	Community string `json:"community"`
	Status    string `json:"status"`
}

// StartRun handles POST /v1/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	community := strings.TrimSpace(req.Community)
	if err := workspace.ValidateName(community); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid community name")
		return
	}

	runID, err := h.service.StartRun(r.Context(), community)
	if err != nil {
		writeError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, StartRunResponse{
		ID:        runID,
		Community: community,
		Status:    string(models.RunStatusRunning),
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.service.Status(runID)
	if err != nil {
		writeError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetCurrentRun handles GET /v1/runs/current
func (h *RunHandler) GetCurrentRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.service.Current()
	if !ok {
		writeMessage(w, http.StatusNotFound, "No active run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.List()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to list runs: "+err.Error())
		return
	}

	community := r.URL.Query().Get("community")
	status := r.URL.Query().Get("status")

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		if community != "" && !strings.EqualFold(run.Community, community) {
			continue
		}
		if status != "" && string(run.Status) != status {
			continue
		}
		items = append(items, map[string]interface{}{
			"id":           run.ID,
			"community":    run.Community,
			"status":       run.Status,
			"jobs":         len(run.Jobs),
			"result_ready": run.ResultReady,
			"created_at":   run.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	events, err := h.service.Events(runID)
	if err != nil {
		writeError(w, runID, err)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"seq":         event.Seq,
			"at":          event.At,
			"from_status": event.FromStatus,
			"to_status":   event.ToStatus,
			"reason":      event.Reason,
		}
		if event.JobID != "" {
			item["job_id"] = event.JobID
		}
		if len(event.Meta) > 0 {
			item["meta"] = event.Meta
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetRunResult handles GET /v1/runs/{id}/result
func (h *RunHandler) GetRunResult(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	res, err := h.service.Result(runID)
	if err != nil {
		writeError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRunAnalysis handles GET /v1/runs/{id}/analysis-md
func (h *RunHandler) GetRunAnalysis(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	md, err := h.service.AnalysisMarkdown(runID)
	if err != nil {
		writeError(w, runID, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(md)
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	// Verify run exists
	if _, err := h.service.Status(runID); err != nil {
		writeError(w, runID, err)
		return
	}

	// Parse optional type filter
	var artifactType *models.ArtifactType
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		t := models.ArtifactType(typeParam)
		artifactType = &t
	}

	items := []map[string]interface{}{}
	if h.artifacts != nil {
		artifacts, err := h.artifacts.GetRunArtifacts(r.Context(), runID, artifactType)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch artifacts: "+err.Error())
			return
		}
		for _, artifact := range artifacts {
			items = append(items, map[string]interface{}{
				"type":       artifact.Type,
				"uri":        artifact.URI,
				"created_at": artifact.CreatedAt,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetCommunitySummary handles GET /v1/communities/{community}/analysis
func (h *RunHandler) GetCommunitySummary(w http.ResponseWriter, r *http.Request) {
	community := mux.Vars(r)["community"]
	if h.summaries == nil {
		writeMessage(w, http.StatusNotFound, "Summary export is disabled")
		return
	}

	res, err := h.summaries.LatestSummary(r.Context(), community)
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, runID string, err error) {
	var (
		concurrent *errors.ConcurrentRunError
		notFound   *errors.NotFoundError
	)
	body := map[string]interface{}{"error": err.Error()}
	if runID != "" {
		body["run_id"] = runID
	}

	switch {
	case errors.As(err, &concurrent):
		body["active_run_id"] = concurrent.ActiveRunID
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, errors.ErrInvalidCommunityName):
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, errors.ErrResultPending):
		body["status"] = "pending"
		writeJSON(w, http.StatusAccepted, body)
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, body)
	case errors.IsFatal(err):
		body["scope"] = string(errors.ScopeFatal)
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
