package handlers

import (
	"fmt"
	"net/http"
	"time"

	"community-orchestrator/core/models"

	"github.com/dustin/go-humanize"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	service RunService
	now     func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service RunService) *DashboardHandler {
	return &DashboardHandler{service: service, now: time.Now}
}

// GetRunMetrics returns run and job counts for the dashboard
func (h *DashboardHandler) GetRunMetrics(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Parse dates (default to last 30 days)
	var start, end time.Time
	if startDate != "" {
		var err error
		start, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
	} else {
		start = h.now().AddDate(0, 0, -30)
	}

	if endDate != "" {
		var err error
		end, err = time.Parse(time.RFC3339, endDate)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	} else {
		end = h.now()
	}

	runs, err := h.service.List()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch runs: "+err.Error())
		return
	}

	runCounts := map[models.RunStatus]int{}
	jobCounts := map[models.JobStatus]int{}
	for _, run := range runs {
		if run.CreatedAt.Before(start) || run.CreatedAt.After(end) {
			continue
		}
		runCounts[run.Status]++
		for _, job := range run.Jobs {
			jobCounts[job.Status]++
		}
	}

	response := map[string]interface{}{
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"runs": runCounts,
		"jobs": jobCounts,
	}
	if current, ok := h.service.Current(); ok {
		response["current"] = h.progress(current)
	}

	writeJSON(w, http.StatusOK, response)
}

// GetJobDurations returns the job breakdown of a run, the active one by default
func (h *DashboardHandler) GetJobDurations(w http.ResponseWriter, r *http.Request) {
	var (
		run *models.Run
		err error
	)
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err = h.service.Status(runID)
		if err != nil {
			writeError(w, runID, err)
			return
		}
	} else {
		var ok bool
		if run, ok = h.service.Current(); !ok {
			writeMessage(w, http.StatusNotFound, "No active run")
			return
		}
	}

	limit := len(run.Jobs)
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		fmt.Sscanf(limitParam, "%d", &limit)
	}

	now := h.now()
	items := make([]map[string]interface{}, 0, len(run.Jobs))
	for _, job := range run.Jobs {
		if len(items) >= limit {
			break
		}
		item := map[string]interface{}{
			"job_id":      job.ID,
			"model":       job.Model,
			"requirement": job.Requirement,
			"status":      job.Status,
		}
		if job.StartedAt != nil {
			finished := now
			if job.FinishedAt != nil {
				finished = *job.FinishedAt
			}
			item["duration_seconds"] = finished.Sub(*job.StartedAt).Seconds()
			item["started"] = humanize.RelTime(*job.StartedAt, now, "ago", "from now")
		}
		if job.Error != "" {
			item["error"] = job.Error
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"items":  items,
	})
}

func (h *DashboardHandler) progress(run *models.Run) map[string]interface{} {
	done := 0
	for _, job := range run.Jobs {
		if job.Status.IsTerminal() {
			done++
		}
	}
	out := map[string]interface{}{
		"id":        run.ID,
		"community": run.Community,
		"status":    run.Status,
		"done":      done,
		"total":     len(run.Jobs),
		"jobs":      run.JobCounts(),
	}
	if run.StartedAt != nil {
		out["started"] = humanize.RelTime(*run.StartedAt, h.now(), "ago", "from now")
	}
	return out
}
