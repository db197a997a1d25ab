package models

import "strings"

// Building eras recognised in requirement tables and archetype file names
const (
	EraPre2000  = "pre-2000"
	Era2001To15 = "2001-2015"
	EraPost2016 = "post-2016"
)

// Building forms recognised in requirement tables and archetype file names
const (
	FormSingle = "single"
	FormSemi   = "semi"
	FormRowMid = "row-mid"
	FormRowEnd = "row-end"
)

// Eras lists the eras in report order.
var Eras = []string{EraPre2000, Era2001To15, EraPost2016}

// Forms lists the building forms in report order.
var Forms = []string{FormSingle, FormSemi, FormRowMid, FormRowEnd}

// ArchetypeModel is a read-only archetype file in the shared library.
// Its identity is the file name.
type ArchetypeModel struct {
	Name         string `json:"name"`          // file name, e.g. "pre-2000-single_EX-0001.H2K"
	Path         string `json:"path"`          // absolute path inside the library
	BuildingType string `json:"building_type"` // classifier taken from the file-name prefix, e.g. "pre-2000-single"
}

// Stem returns the file name without its extension.
func (m ArchetypeModel) Stem() string {
	return StemOf(m.Name)
}

// StemOf strips the extension from an archetype file name.
func StemOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// Requirement asks for a number of archetypes of one building type.
type Requirement struct {
	Key    string  `json:"key"` // "<era>-<form>", e.g. "2001-2015-semi"
	Era    string  `json:"era"`
	Form   string  `json:"form"`
	Houses int     `json:"houses"`         // houses of this type in the community
	Target int     `json:"target"`         // archetypes to select (houses plus headroom)
	Seed   *string `json:"seed,omitempty"` // overrides the process-wide selection seed when set
}

// RequirementSelection is the outcome of selecting archetypes for one requirement.
type RequirementSelection struct {
	Requirement Requirement `json:"requirement"`
	Patterns    []string    `json:"patterns"`
	Matched     int         `json:"matched"`   // library models matching the criteria
	Selected    []string    `json:"selected"`  // chosen model identities, in selection order
	Shortfall   int         `json:"shortfall"` // Target - len(Selected), never negative
	Seed        string      `json:"seed"`      // effective seed used for this requirement
}

// SelectionResult maps each requirement to its ordered list of chosen models.
type SelectionResult struct {
	Community  string                 `json:"community"`
	Seed       string                 `json:"seed"`
	Selections []RequirementSelection `json:"selections"`
}

// Total returns the number of selected models across all requirements.
func (s SelectionResult) Total() int {
	n := 0
	for _, sel := range s.Selections {
		n += len(sel.Selected)
	}
	return n
}

// ForRequirement returns the selection for a requirement key.
func (s SelectionResult) ForRequirement(key string) (RequirementSelection, bool) {
	for _, sel := range s.Selections {
		if sel.Requirement.Key == key {
			return sel, true
		}
	}
	return RequirementSelection{}, false
}
