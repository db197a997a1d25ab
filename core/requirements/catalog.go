// Package requirements resolves a community to the archetype requirements
// and the weather location used for its run.
package requirements

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
	"community-orchestrator/core/tables"
)

// Backing table file names inside the csv directory
const (
	HousesFile     = "communities-number-of-houses.csv"
	WeatherMapFile = "train-test communities hdd and weather locations.csv"
)

// Catalog loads requirements from the csv directory. It never writes.
type Catalog struct {
	dir      string
	headroom float64
	logger   *logging.Logger
}

// NewCatalog creates a new catalog reading tables from dir.
func NewCatalog(dir string, headroom float64, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Catalog{dir: dir, headroom: headroom, logger: logger}
}

// TargetFor applies the headroom rule: ceil(houses * (1 + headroom)).
func TargetFor(houses int, headroom float64) int {
	if houses <= 0 {
		return 0
	}
	// absorb float noise such as 5*1.2 = 6.000000000000001
	return int(math.Ceil(float64(houses)*(1+headroom) - 1e-9))
}

// Load returns the community's requirements in table order.
func (c *Catalog) Load(community string) ([]models.Requirement, error) {
	path := filepath.Join(c.dir, HousesFile)
	records, err := tables.Read(path)
	if err != nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: HousesFile, Err: err}
	}

	var row []string
	for _, rec := range records {
		if len(rec) > 0 && tables.SameName(rec[0], community) {
			row = rec
			break
		}
	}
	if row == nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: HousesFile, Err: errors.ErrUnknownCommunity}
	}

	reqs, err := c.parseRow(community, row[1:])
	if err != nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: HousesFile, Err: err}
	}

	overrides, err := LoadOverrides(filepath.Join(c.dir, OverridesFile))
	if err != nil {
		return nil, &errors.RequirementLoadError{Community: community, Table: OverridesFile, Err: err}
	}
	for i := range reqs {
		o, ok := overrides.For(community, reqs[i].Key)
		if !ok {
			continue
		}
		if o.Seed != nil {
			seed := *o.Seed
			reqs[i].Seed = &seed
		}
		if o.Target != nil {
			reqs[i].Target = *o.Target
		}
	}

	c.logger.Debug("requirements loaded", "community", community, "count", len(reqs))
	return reqs, nil
}

func (c *Catalog) parseRow(community string, cells []string) ([]models.Requirement, error) {
	// rows are padded to the widest row of the table
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	if len(cells)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of key/count cells (%d)", errors.ErrMalformedTable, len(cells))
	}

	var (
		reqs     []models.Requirement
		position = map[string]int{}
		total    int
	)
	for i := 0; i < len(cells); i += 2 {
		rawKey := strings.TrimSpace(cells[i])
		rawCount := strings.TrimSpace(cells[i+1])
		if rawKey == "" && rawCount == "" {
			continue
		}

		era, form, ok := ParseKey(rawKey)
		if !ok {
			c.logger.Warn("skipping unrecognised requirement key", "community", community, "key", rawKey)
			continue
		}
		houses, err := parseCount(rawCount)
		if err != nil {
			c.logger.Warn("skipping invalid requirement count", "community", community, "key", rawKey, "value", rawCount)
			continue
		}

		key := era + "-" + form
		req := models.Requirement{
			Key:    key,
			Era:    era,
			Form:   form,
			Houses: houses,
			Target: TargetFor(houses, c.headroom),
		}
		if pos, seen := position[key]; seen {
			total -= reqs[pos].Houses
			reqs[pos] = req
		} else {
			position[key] = len(reqs)
			reqs = append(reqs, req)
		}
		total += houses
	}

	if total == 0 {
		return nil, errors.ErrEmptyRequirements
	}

	out := reqs[:0]
	for _, r := range reqs {
		if r.Houses > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// ParseKey extracts era and form from a table key such as "pre-2000-single".
func ParseKey(key string) (era, form string, ok bool) {
	k := strings.ToLower(key)
	for _, e := range models.Eras {
		if strings.Contains(k, e) {
			era = e
			break
		}
	}
	for _, f := range models.Forms {
		if strings.Contains(k, f) {
			form = f
			break
		}
	}
	return era, form, era != "" && form != ""
}

func parseCount(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %d", n)
		}
		return n, nil
	}
	// spreadsheet exports write integers as "12.0"
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("not a count: %q", raw)
	}
	return int(f), nil
}

// WeatherLocation resolves the weather location name of a community.
// Communities absent from the mapping fall back to their own name with
// dashes replaced by spaces.
func (c *Catalog) WeatherLocation(community string) (string, error) {
	records, err := tables.Read(filepath.Join(c.dir, WeatherMapFile))
	if err != nil {
		return "", &errors.RequirementLoadError{Community: community, Table: WeatherMapFile, Err: err}
	}
	if len(records) == 0 {
		return "", &errors.RequirementLoadError{Community: community, Table: WeatherMapFile,
			Err: fmt.Errorf("%w: empty table", errors.ErrMalformedTable)}
	}

	idx := tables.ColumnIndex(records[0])
	commCol, okC := idx["Community"]
	weatherCol, okW := idx["WEATHER"]
	if !okC || !okW {
		return "", &errors.RequirementLoadError{Community: community, Table: WeatherMapFile,
			Err: fmt.Errorf("%w: missing Community or WEATHER column", errors.ErrMalformedTable)}
	}

	for _, row := range records[1:] {
		if tables.SameName(tables.Cell(row, commCol), community) {
			if loc := tables.Cell(row, weatherCol); loc != "" {
				return loc, nil
			}
		}
	}

	fallback := strings.ReplaceAll(community, "-", " ")
	c.logger.Info("community not in weather mapping, using its name", "community", community, "location", fallback)
	return fallback, nil
}
