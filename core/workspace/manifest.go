package workspace

import (
	"fmt"
	"os"
	"strings"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
)

var formLabels = map[string]string{
	models.FormSingle: "Single Detached",
	models.FormSemi:   "Semi-Detached",
	models.FormRowMid: "Row House Middle",
	models.FormRowEnd: "Row House End",
}

var eraLabels = map[string]string{
	models.EraPre2000:  "Pre-2000",
	models.Era2001To15: "2001-2015",
	models.EraPost2016: "Post-2016",
}

// ManifestInput is what the staging manifest documents.
type ManifestInput struct {
	Community       string
	WeatherLocation string
	Requirements    []models.Requirement
	Selection       *models.SelectionResult
	CreatedAt       time.Time
}

// RenderManifest renders the staging manifest as markdown.
func RenderManifest(in ManifestInput) string {
	byKey := make(map[string]models.Requirement, len(in.Requirements))
	for _, r := range in.Requirements {
		byKey[r.Key] = r
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Community Analysis Manifest\n\n", in.Community)
	b.WriteString("## Weather Location\n")
	fmt.Fprintf(&b, "Using weather data from: %s\n\n", in.WeatherLocation)

	b.WriteString("## Housing Requirements\n")
	for _, era := range models.Eras {
		fmt.Fprintf(&b, "\n### %s\n", eraLabels[era])
		for _, form := range models.Forms {
			r := byKey[era+"-"+form]
			fmt.Fprintf(&b, "- %s: %d", formLabels[form], r.Houses)
			if r.Houses > 0 {
				fmt.Fprintf(&b, " (staging %d)", r.Target)
			}
			b.WriteString("\n")
		}
	}

	if in.Selection != nil {
		b.WriteString("\n## Staged Archetypes\n")
		for _, rs := range in.Selection.Selections {
			fmt.Fprintf(&b, "\n### %s\n", rs.Requirement.Key)
			fmt.Fprintf(&b, "- Matched: %d, selected: %d, shortfall: %d\n", rs.Matched, len(rs.Selected), rs.Shortfall)
			for _, name := range rs.Selected {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
	}

	b.WriteString("\n## Notes\n")
	fmt.Fprintf(&b, "- Created on: %s\n", in.CreatedAt.Format("2006-01-02 15:04:05"))
	if in.Selection != nil {
		fmt.Fprintf(&b, "- Selection seed: %s\n", in.Selection.Seed)
	}
	return b.String()
}

// WriteManifest writes the staging manifest into the archetypes directory.
func (m *Manager) WriteManifest(layout Layout, in ManifestInput) (string, error) {
	path := layout.ManifestPath()
	if err := os.WriteFile(path, []byte(RenderManifest(in)), 0o644); err != nil {
		return "", &errors.WorkspaceError{Op: "write manifest", Path: path, Err: err}
	}
	return path, nil
}
