// Package analysis aggregates per-model hourly time series into community
// totals and writes the analysis artifacts.
package analysis

import (
	"fmt"
	"strconv"

	"community-orchestrator/core/models"
	"community-orchestrator/core/tables"
)

// KBtuToGJ converts simulator kBtu values to GJ.
const KBtuToGJ = 0.001055056

// Column names of the simulator's hourly output.
const (
	ColumnTime        = "Time"
	ColumnHeatingLoad = "Load: Heating: Delivered"
)

var (
	electricityColumns = []string{"End Use: Electricity: Heating", "System Use: HeatingSystem1: Electricity: Heating"}
	oilColumns         = []string{"End Use: Fuel Oil: Heating", "System Use: HeatingSystem1: Fuel Oil: Heating"}
	propaneColumns     = []string{"End Use: Propane: Heating", "System Use: HeatingSystem1: Propane: Heating"}
)

// Series is the parsed hourly heating energy of one model.
type Series struct {
	Model  string
	Rows   int // data rows in the file, units row included
	Points []models.SeriesPoint
}

// Totals sums every point of the series.
func (s *Series) Totals() models.EnergyTotals {
	var t models.EnergyTotals
	for _, p := range s.Points {
		t.Add(pointTotals(p))
	}
	return t
}

func pointTotals(p models.SeriesPoint) models.EnergyTotals {
	return models.EnergyTotals{
		HeatingLoadGJ: p.HeatingLoadGJ,
		PropaneGJ:     p.PropaneGJ,
		OilGJ:         p.OilGJ,
		ElectricityGJ: p.ElectricityGJ,
		TotalEnergyGJ: p.TotalEnergyGJ,
	}
}

// ReadSeries parses a collected time-series file. Rows whose heating load
// is not numeric, such as the units row, are skipped. Missing fuel columns
// count as zero.
func ReadSeries(model, path string) (*Series, error) {
	records, err := tables.Read(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty time series", path)
	}

	cols := tables.ColumnIndex(records[0])
	timeCol, ok := cols[ColumnTime]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", path, ColumnTime)
	}
	loadCol, ok := cols[ColumnHeatingLoad]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", path, ColumnHeatingLoad)
	}
	elecCol := firstColumn(cols, electricityColumns)
	oilCol := firstColumn(cols, oilColumns)
	propaneCol := firstColumn(cols, propaneColumns)

	series := &Series{Model: model, Rows: len(records) - 1, Points: make([]models.SeriesPoint, 0, len(records)-1)}
	for _, row := range records[1:] {
		load, err := strconv.ParseFloat(tables.Cell(row, loadCol), 64)
		if err != nil {
			continue
		}
		p := models.SeriesPoint{
			Time:          tables.Cell(row, timeCol),
			HeatingLoadGJ: load * KBtuToGJ,
			ElectricityGJ: gj(row, elecCol),
			OilGJ:         gj(row, oilCol),
			PropaneGJ:     gj(row, propaneCol),
		}
		p.TotalEnergyGJ = p.PropaneGJ + p.OilGJ + p.ElectricityGJ
		series.Points = append(series.Points, p)
	}
	return series, nil
}

func firstColumn(cols map[string]int, names []string) int {
	for _, name := range names {
		if i, ok := cols[name]; ok {
			return i
		}
	}
	return -1
}

// gj reads a kBtu cell as GJ. Absent or non-numeric cells are zero.
func gj(row []string, col int) float64 {
	v, err := strconv.ParseFloat(tables.Cell(row, col), 64)
	if err != nil {
		return 0
	}
	return v * KBtuToGJ
}
