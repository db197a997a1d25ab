// Package selector matches community requirements against the archetype
// library and draws a reproducible subset of models.
package selector

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// Request describes one selection.
type Request struct {
	Community    string
	Requirements []models.Requirement
	Library      []models.ArchetypeModel
	Seed         string          // overrides the selector's default seed when non-empty
	Debug        *logging.Logger // receives one entry per requirement decision
}

// Selector picks archetypes for requirements.
type Selector struct {
	seed   string
	logger *logging.Logger
}

// NewSelector creates a new selector using seed as the process-wide default.
func NewSelector(seed string, logger *logging.Logger) *Selector {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Selector{seed: seed, logger: logger}
}

// Seed returns the process-wide default seed.
func (s *Selector) Seed() string {
	return s.seed
}

// SeedValue hashes a seed string into a math/rand source seed.
func SeedValue(seed string) int64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}

// EffectiveSeed returns the seed that drives the draw for req.
// A requirement's own seed takes precedence; otherwise the process seed is
// scoped by requirement key so each draw is independent of table order.
func EffectiveSeed(processSeed string, req models.Requirement) string {
	if req.Seed != nil {
		return *req.Seed
	}
	return processSeed + ":" + req.Key
}

// Select returns the chosen models per requirement. Requirements matching
// fewer models than their target keep every match and record a shortfall.
// It fails only when no requirement selected anything.
func (s *Selector) Select(req Request) (*models.SelectionResult, error) {
	seed := req.Seed
	if seed == "" {
		seed = s.seed
	}
	debug := req.Debug
	if debug == nil {
		debug = s.logger
	}
	debug = debug.WithCommunity(req.Community)

	library := make([]models.ArchetypeModel, len(req.Library))
	copy(library, req.Library)
	sort.Slice(library, func(i, j int) bool { return library[i].Name < library[j].Name })

	result := &models.SelectionResult{Community: req.Community, Seed: seed}
	for _, r := range req.Requirements {
		sel, err := selectOne(r, library, seed)
		if err != nil {
			return nil, err
		}
		result.Selections = append(result.Selections, sel)

		if sel.Matched == 0 {
			miss := &errors.NoMatchError{Requirement: r.Key, Patterns: sel.Patterns}
			debug.Warn("no archetypes matched requirement",
				"requirement", r.Key, "target", r.Target, "error", miss.Error())
			continue
		}
		debug.Info("requirement selected",
			"requirement", r.Key,
			"houses", r.Houses,
			"target", r.Target,
			"matched", sel.Matched,
			"selected", len(sel.Selected),
			"shortfall", sel.Shortfall,
			"seed", sel.Seed,
			"models", sel.Selected,
		)
	}

	if result.Total() == 0 {
		return nil, fmt.Errorf("community %q: %w", req.Community, errors.ErrEmptySelection)
	}
	return result, nil
}

func selectOne(r models.Requirement, library []models.ArchetypeModel, processSeed string) (models.RequirementSelection, error) {
	criteria, err := NewCriteria(r)
	if err != nil {
		return models.RequirementSelection{}, err
	}

	var matched []string
	for _, m := range library {
		if criteria.Match(m.Name) {
			matched = append(matched, m.Name)
		}
	}

	seed := EffectiveSeed(processSeed, r)
	rng := rand.New(rand.NewSource(SeedValue(seed)))
	rng.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })

	take := r.Target
	if take > len(matched) {
		take = len(matched)
	}
	selected := make([]string, take)
	copy(selected, matched[:take])

	return models.RequirementSelection{
		Requirement: r,
		Patterns:    criteria.Patterns,
		Matched:     len(matched),
		Selected:    selected,
		Shortfall:   r.Target - take,
		Seed:        seed,
	}, nil
}
