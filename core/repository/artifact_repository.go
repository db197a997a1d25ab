package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"community-orchestrator/core/models"
)

// ArtifactRepository records where run artifacts were published.
type ArtifactRepository struct {
	db Querier
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db Querier) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, a models.Artifact) error {
	metaJSON := "{}"
	if a.Meta != nil {
		metaBytes, err := json.Marshal(a.Meta)
		if err == nil {
			metaJSON = string(metaBytes)
		}
	}

	query := `
		INSERT INTO run_artifacts (run_id, community, type, uri, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, a.RunID, a.Community, a.Type, a.URI, metaJSON)
	return err
}

// GetRunArtifacts retrieves artifacts for a run, newest first.
func (r *ArtifactRepository) GetRunArtifacts(ctx context.Context, runID string, artifactType *models.ArtifactType) ([]models.Artifact, error) {
	query := `
		SELECT id, run_id, community, type, uri, created_at, meta_json
		FROM run_artifacts
		WHERE run_id = $1
	`
	args := []interface{}{runID}

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, *artifactType)
	}

	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.Artifact
	for rows.Next() {
		var artifact models.Artifact
		var metaJSON []byte

		err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.Community,
			&artifact.Type,
			&artifact.URI,
			&artifact.CreatedAt,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &artifact.Meta)
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}
