package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
)

// AnalysisRepository stores the latest analysis summary per community.
type AnalysisRepository struct {
	db Querier
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db Querier) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// SaveSummary replaces the stored summary of the result's community.
func (r *AnalysisRepository) SaveSummary(ctx context.Context, res *models.CommunityAnalysisResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	query := `
		INSERT INTO community_analyses (
			community, run_id, weather_location, generated_at, total_energy_gj,
			heating_load_gj, files_used, files_selected, alignment_error, result_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (community) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			weather_location = EXCLUDED.weather_location,
			generated_at = EXCLUDED.generated_at,
			total_energy_gj = EXCLUDED.total_energy_gj,
			heating_load_gj = EXCLUDED.heating_load_gj,
			files_used = EXCLUDED.files_used,
			files_selected = EXCLUDED.files_selected,
			alignment_error = EXCLUDED.alignment_error,
			result_json = EXCLUDED.result_json
	`

	_, err = r.db.ExecContext(ctx, query,
		res.Community,
		res.RunID,
		res.WeatherLocation,
		res.GeneratedAt,
		res.Totals.TotalEnergyGJ,
		res.Totals.HeatingLoadGJ,
		res.FilesUsed,
		res.FilesSelected,
		res.AlignmentError,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save summary for %s: %w", res.Community, err)
	}
	return nil
}

// LatestSummary returns the stored summary of community.
func (r *AnalysisRepository) LatestSummary(ctx context.Context, community string) (*models.CommunityAnalysisResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT result_json FROM community_analyses WHERE community = $1`, community)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &errors.NotFoundError{Kind: "analysis", ID: community}
	}
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, err
	}

	var res models.CommunityAnalysisResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode summary for %s: %w", community, err)
	}
	return &res, nil
}
