package selector

import (
	"fmt"

	"github.com/gobwas/glob"

	"community-orchestrator/core/models"
)

// formAliases lists alternative names used in archetype file names.
var formAliases = map[string][]string{
	models.FormSemi:   {"double"},
	models.FormRowMid: {"row-middle"},
}

// Criteria is the building-type filter of one requirement.
type Criteria struct {
	Patterns []string
	globs    []glob.Glob
}

// PatternsFor returns the file-name globs of a requirement, e.g.
// "pre-2000-semi_*.H2K" and "pre-2000-double_*.H2K".
func PatternsFor(req models.Requirement) []string {
	if req.Era == "" || req.Form == "" {
		return []string{req.Key + "_*" + ArchetypeExt}
	}
	forms := append([]string{req.Form}, formAliases[req.Form]...)
	patterns := make([]string, 0, len(forms))
	for _, f := range forms {
		patterns = append(patterns, fmt.Sprintf("%s-%s_*%s", req.Era, f, ArchetypeExt))
	}
	return patterns
}

// NewCriteria compiles the requirement's patterns.
func NewCriteria(req models.Requirement) (*Criteria, error) {
	c := &Criteria{Patterns: PatternsFor(req)}
	for _, p := range c.Patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid archetype pattern %q: %w", p, err)
		}
		c.globs = append(c.globs, g)
	}
	return c, nil
}

// Match reports whether an archetype file name satisfies the criteria.
func (c *Criteria) Match(name string) bool {
	for _, g := range c.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
