package weather

import (
	"fmt"
	"path/filepath"
	"strings"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/tables"
)

// Lookup tables in the csv directory
const (
	LocationCodesFile  = "location_code.csv"
	WeatherDetailsFile = "weather_details.csv"
)

// DepthOfFrost is written into every mutated weather block.
const DepthOfFrost = "1.2192"

// Reference is the climate/location reference injected into archetypes.
type Reference struct {
	Location     string // upper-case location name
	LocationCode string
	HDD          string // heating degree days
	Library      string // weather library file
	Region       Region
}

// Resolver builds references from the csv directory.
type Resolver struct {
	dir string
}

// NewResolver creates a new resolver reading tables from dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the reference for a weather location. Any gap in the
// lookup tables is fatal for the community's run.
func (r *Resolver) Resolve(community, location string) (*Reference, error) {
	loc := strings.ToUpper(strings.TrimSpace(location))

	codes, err := r.locationCodes()
	if err != nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: LocationCodesFile, Err: err}
	}
	details, err := r.weatherDetails()
	if err != nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: WeatherDetailsFile, Err: err}
	}

	detail, ok := details[loc]
	if !ok {
		return nil, &errors.RequirementLoadError{Community: community, Table: WeatherDetailsFile,
			Err: fmt.Errorf("%w: %q", errors.ErrUnknownLocation, loc)}
	}
	code, ok := codes[loc]
	if !ok {
		return nil, &errors.RequirementLoadError{Community: community, Table: LocationCodesFile,
			Err: fmt.Errorf("%w: %q", errors.ErrUnknownLocation, loc)}
	}
	region, ok := RegionFor(loc)
	if !ok {
		return nil, &errors.RequirementLoadError{Community: community,
			Err: fmt.Errorf("%w: no region for %q", errors.ErrUnknownLocation, loc)}
	}

	return &Reference{
		Location:     loc,
		LocationCode: code,
		HDD:          detail.hdd,
		Library:      detail.library,
		Region:       region,
	}, nil
}

type weatherDetail struct {
	hdd     string
	library string
}

// locationCodes reads headerless "location,code" rows.
func (r *Resolver) locationCodes() (map[string]string, error) {
	records, err := tables.Read(filepath.Join(r.dir, LocationCodesFile))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(records))
	for _, row := range records {
		if len(row) < 2 {
			continue
		}
		out[strings.ToUpper(tables.Cell(row, 0))] = tables.Cell(row, 1)
	}
	return out, nil
}

// weatherDetails reads "location,hdd,library" rows after a header.
func (r *Resolver) weatherDetails() (map[string]weatherDetail, error) {
	records, err := tables.Read(filepath.Join(r.dir, WeatherDetailsFile))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty table", errors.ErrMalformedTable)
	}
	out := make(map[string]weatherDetail, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 3 {
			continue
		}
		out[strings.ToUpper(tables.Cell(row, 0))] = weatherDetail{
			hdd:     tables.Cell(row, 1),
			library: tables.Cell(row, 2),
		}
	}
	return out, nil
}
