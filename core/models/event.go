package models

import "time"

// TransitionEvent records a state change of a run or one of its jobs.
// JobID is empty for run-level transitions.
type TransitionEvent struct {
	Seq        int64                  `json:"seq"`
	RunID      string                 `json:"run_id"`
	JobID      string                 `json:"job_id,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Community  string                 `json:"community"`
	At         time.Time              `json:"at"`
	FromStatus string                 `json:"from_status,omitempty"`
	ToStatus   string                 `json:"to_status"`
	Reason     string                 `json:"reason"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// ArtifactType represents the type of run artifact
type ArtifactType string

const (
	ArtifactTypeTimeseries ArtifactType = "timeseries"
	ArtifactTypeAnalysis   ArtifactType = "analysis"
	ArtifactTypeManifest   ArtifactType = "manifest"
	ArtifactTypeDebugLog   ArtifactType = "debug_log"
)

// Artifact is a published output file of a run.
type Artifact struct {
	ID        int64                  `json:"id"`
	RunID     string                 `json:"run_id"`
	Community string                 `json:"community"`
	Type      ArtifactType           `json:"type"`
	URI       string                 `json:"uri"`
	CreatedAt time.Time              `json:"created_at"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}
