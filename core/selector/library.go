package selector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"community-orchestrator/core/models"
)

// ArchetypeExt is the extension of archetype model files.
const ArchetypeExt = ".H2K"

// Library is the read-only, shared directory of archetype models.
type Library struct {
	dir string
}

// NewLibrary creates a new library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the library root.
func (l *Library) Dir() string {
	return l.dir
}

// Snapshot lists the archetype files currently in the library, sorted by name.
func (l *Library) Snapshot() ([]models.ArchetypeModel, error) {
	abs, err := filepath.Abs(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read archetype library: %w", err)
	}

	var out []models.ArchetypeModel
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ArchetypeExt) {
			continue
		}
		out = append(out, models.ArchetypeModel{
			Name:         e.Name(),
			Path:         filepath.Join(abs, e.Name()),
			BuildingType: BuildingTypeOf(e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BuildingTypeOf returns the classifier prefix of an archetype file name,
// the part before the first underscore.
func BuildingTypeOf(name string) string {
	stem := models.StemOf(name)
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[:i]
	}
	return stem
}
