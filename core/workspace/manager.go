// Package workspace owns the per-community working tree. Every run starts
// from a clean slate; library models are copied in, never linked.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// Subdirectories of a community workspace
const (
	ArchetypesDir = "archetypes"
	TimeseriesDir = "timeseries"
	AnalysisDir   = "analysis"
	OutputDir     = "output" // converter scratch space under archetypes/
)

// Layout holds the absolute paths of one community workspace.
type Layout struct {
	Community  string
	Root       string
	Archetypes string
	Timeseries string
	Analysis   string
	Output     string
}

// ManifestPath returns archetypes/<community>-manifest.md.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.Archetypes, l.Community+"-manifest.md")
}

// SelectionLogPath returns the structured selection debug log.
func (l Layout) SelectionLogPath() string {
	return filepath.Join(l.Analysis, "selection_debug.log")
}

// invalidName matches characters that cannot appear in a workspace directory name.
var invalidName = regexp.MustCompile(`[/\\<>:"|?*\x00-\x1f]`)

// ValidateName rejects community names that cannot be used verbatim as a
// directory under the communities root.
func ValidateName(community string) error {
	if strings.TrimSpace(community) == "" || community == "." || community == ".." || invalidName.MatchString(community) {
		return &errors.WorkspaceError{Op: "validate", Path: community, Err: errors.ErrInvalidCommunityName}
	}
	return nil
}

// Manager prepares and stages community workspaces under a root directory.
type Manager struct {
	root   string
	logger *logging.Logger
}

// NewManager creates a new workspace manager rooted at the communities directory.
func NewManager(root string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{root: root, logger: logger}
}

// Layout resolves the workspace of community, refusing paths that escape the root.
func (m *Manager) Layout(community string) (Layout, error) {
	if err := ValidateName(community); err != nil {
		return Layout{}, err
	}
	root, err := filepath.Abs(m.root)
	if err != nil {
		return Layout{}, &errors.WorkspaceError{Op: "resolve", Path: m.root, Err: err}
	}
	dir := filepath.Join(root, community)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Layout{}, &errors.WorkspaceError{Op: "resolve", Path: dir,
			Err: fmt.Errorf("community directory is not inside %s", root)}
	}

	archetypes := filepath.Join(dir, ArchetypesDir)
	return Layout{
		Community:  community,
		Root:       dir,
		Archetypes: archetypes,
		Timeseries: filepath.Join(dir, TimeseriesDir),
		Analysis:   filepath.Join(dir, AnalysisDir),
		Output:     filepath.Join(archetypes, OutputDir),
	}, nil
}

// Prepare deletes the previous workspace of community and recreates the
// archetypes, timeseries and analysis directories.
func (m *Manager) Prepare(community string) (Layout, error) {
	layout, err := m.Layout(community)
	if err != nil {
		return Layout{}, err
	}

	if _, err := os.Lstat(layout.Root); err == nil {
		if err := RemoveAll(layout.Root); err != nil {
			return Layout{}, &errors.WorkspaceError{Op: "remove", Path: layout.Root, Err: err}
		}
		m.logger.Info("removed previous workspace", "community", community, "path", layout.Root)
	} else if !os.IsNotExist(err) {
		return Layout{}, &errors.WorkspaceError{Op: "stat", Path: layout.Root, Err: err}
	}

	for _, dir := range []string{layout.Archetypes, layout.Timeseries, layout.Analysis} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, &errors.WorkspaceError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return layout, nil
}

// Stage copies a library model into the archetypes directory and returns
// the copy's path. The copy is always writable so it can be mutated.
func (m *Manager) Stage(model models.ArchetypeModel, layout Layout) (string, error) {
	dst := filepath.Join(layout.Archetypes, model.Name)

	src, err := filepath.Abs(model.Path)
	if err != nil {
		return "", &errors.WorkspaceError{Op: "stage", Path: model.Path, Err: err}
	}
	if src == dst {
		return "", &errors.WorkspaceError{Op: "stage", Path: dst, Err: fmt.Errorf("staging target aliases the library file")}
	}

	if err := copyFile(src, dst); err != nil {
		return "", &errors.WorkspaceError{Op: "stage", Path: dst, Err: err}
	}
	return dst, nil
}

// StageSelection copies every selected model. Models are looked up by name
// in library. It returns staged paths keyed by model name.
func (m *Manager) StageSelection(sel *models.SelectionResult, library []models.ArchetypeModel, layout Layout) (map[string]string, error) {
	byName := make(map[string]models.ArchetypeModel, len(library))
	for _, model := range library {
		byName[model.Name] = model
	}

	staged := make(map[string]string, sel.Total())
	for _, rs := range sel.Selections {
		for _, name := range rs.Selected {
			model, ok := byName[name]
			if !ok {
				return nil, &errors.WorkspaceError{Op: "stage", Path: name, Err: fmt.Errorf("model not in library snapshot")}
			}
			path, err := m.Stage(model, layout)
			if err != nil {
				return nil, err
			}
			staged[name] = path
		}
	}
	m.logger.Info("staged archetypes", "community", layout.Community, "count", len(staged))
	return staged, nil
}

// CleanupOutput removes the converter scratch directory.
func (m *Manager) CleanupOutput(layout Layout) error {
	rel, err := filepath.Rel(layout.Root, layout.Output)
	if err != nil || strings.HasPrefix(rel, "..") {
		return &errors.WorkspaceError{Op: "cleanup", Path: layout.Output, Err: fmt.Errorf("output directory is outside the workspace")}
	}
	if err := RemoveAll(layout.Output); err != nil {
		return &errors.WorkspaceError{Op: "cleanup", Path: layout.Output, Err: err}
	}
	return nil
}

// RemoveAll deletes path, making read-only entries writable first.
func RemoveAll(path string) error {
	err := os.RemoveAll(path)
	if err == nil || !os.IsPermission(err) {
		return err
	}
	// retry after restoring owner permissions
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		mode := os.FileMode(0o600)
		if d.IsDir() {
			mode = 0o700
		}
		_ = os.Chmod(p, mode)
		return nil
	})
	return os.RemoveAll(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if info, err := in.Stat(); err == nil {
		_ = os.Chtimes(dst, time.Now(), info.ModTime())
	}
	return nil
}
