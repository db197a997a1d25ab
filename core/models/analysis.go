package models

import "time"

// EnergyTotals sums heating energy in GJ.
type EnergyTotals struct {
	HeatingLoadGJ float64 `json:"heating_load_gj"`
	PropaneGJ     float64 `json:"propane_gj"`
	OilGJ         float64 `json:"oil_gj"`
	ElectricityGJ float64 `json:"electricity_gj"`
	TotalEnergyGJ float64 `json:"total_energy_gj"`
}

// Add accumulates o into t.
func (t *EnergyTotals) Add(o EnergyTotals) {
	t.HeatingLoadGJ += o.HeatingLoadGJ
	t.PropaneGJ += o.PropaneGJ
	t.OilGJ += o.OilGJ
	t.ElectricityGJ += o.ElectricityGJ
	t.TotalEnergyGJ += o.TotalEnergyGJ
}

// Scale returns t multiplied by n.
func (t EnergyTotals) Scale(n int) EnergyTotals {
	f := float64(n)
	return EnergyTotals{
		HeatingLoadGJ: t.HeatingLoadGJ * f,
		PropaneGJ:     t.PropaneGJ * f,
		OilGJ:         t.OilGJ * f,
		ElectricityGJ: t.ElectricityGJ * f,
		TotalEnergyGJ: t.TotalEnergyGJ * f,
	}
}

// SeriesPoint is one hourly row of the community total.
type SeriesPoint struct {
	Time          string  `json:"time"`
	HeatingLoadGJ float64 `json:"heating_load_gj"`
	PropaneGJ     float64 `json:"propane_gj"`
	OilGJ         float64 `json:"oil_gj"`
	ElectricityGJ float64 `json:"electricity_gj"`
	TotalEnergyGJ float64 `json:"total_energy_gj"`
}

// BuildingTotals are the annual totals of one contributing model.
type BuildingTotals struct {
	Model       string       `json:"model"`
	Requirement string       `json:"requirement"`
	Weight      int          `json:"weight"` // times the model is counted, >1 when duplicated
	Rows        int          `json:"rows"`
	Totals      EnergyTotals `json:"totals"`
}

// RequirementRollup sums the contributing buildings of one requirement.
type RequirementRollup struct {
	Requirement string       `json:"requirement"`
	Houses      int          `json:"houses"`
	Counted     int          `json:"counted"`
	Totals      EnergyTotals `json:"totals"`
}

// FailedModel names a model whose job failed and why.
type FailedModel struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// ManifestEntry enumerates what happened to the models of one requirement.
type ManifestEntry struct {
	Requirement string        `json:"requirement"`
	Houses      int           `json:"houses"`
	Target      int           `json:"target"`
	Matched     int           `json:"matched"`
	Shortfall   int           `json:"shortfall"` // selection shortfall against Target
	Succeeded   []string      `json:"succeeded"`
	Failed      []FailedModel `json:"failed"`
	Excluded    []string      `json:"excluded"`   // succeeded but beyond the house count
	Duplicates  []string      `json:"duplicates"` // draws used to fill missing houses
	Unfilled    int           `json:"unfilled"`   // houses left without any contributor
}

// AnalysisIssue is a problem found while aggregating. It never changes job outcomes.
type AnalysisIssue struct {
	Model   string `json:"model,omitempty"`
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// CommunityStatistics summarise the community total series.
type CommunityStatistics struct {
	PeakHourlyLoadGJ      float64 `json:"peak_hourly_load_gj"`
	AverageHourlyLoadGJ   float64 `json:"average_hourly_load_gj"`
	PeakHourlyEnergyGJ    float64 `json:"peak_hourly_energy_gj"`
	AverageHourlyEnergyGJ float64 `json:"average_hourly_energy_gj"`
}

// CommunityAnalysisResult is the aggregated outcome of a run.
type CommunityAnalysisResult struct {
	RunID           string              `json:"run_id"`
	Community       string              `json:"community"`
	WeatherLocation string              `json:"weather_location"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Totals          EnergyTotals        `json:"totals"`
	Statistics      CommunityStatistics `json:"statistics"`
	Buildings       []BuildingTotals    `json:"buildings"`
	Requirements    []RequirementRollup `json:"requirements"`
	Manifest        []ManifestEntry     `json:"manifest"`
	Issues          []AnalysisIssue     `json:"issues"`
	AlignmentError  string              `json:"alignment_error,omitempty"`
	FilesUsed       int                 `json:"files_used"`
	FilesSelected   int                 `json:"files_selected"`
	Series          []SeriesPoint       `json:"-"`
}
