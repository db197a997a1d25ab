// Package weather rewrites the climate/location reference embedded in
// staged archetype files.
package weather

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
)

// weatherBlock matches the Weather element with its Region and Location children.
var weatherBlock = regexp.MustCompile(
	`<Weather\s+depthOfFrost="[^"]*"\s+heatingDegreeDay="[^"]*"\s+` +
		`library="[^"]*">\s*<Region\s+code="[^"]*">\s*<English>[^<]*</English>\s*` +
		`<French>[^<]*</French>\s*</Region>\s*<Location\s+code="[^"]*">\s*` +
		`<English>[^<]*</English>\s*<French>[^<]*</French>\s*</Location>\s*</Weather>`)

// Block renders the Weather element for ref.
func (ref Reference) Block() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<Weather depthOfFrost=\"%s\" heatingDegreeDay=\"%s\" library=\"%s\">\n", DepthOfFrost, ref.HDD, ref.Library)
	fmt.Fprintf(&b, "            <Region code=\"%s\">\n", ref.Region.Code)
	fmt.Fprintf(&b, "                <English>%s</English>\n", ref.Region.English)
	fmt.Fprintf(&b, "                <French>%s</French>\n", ref.Region.French)
	b.WriteString("            </Region>\n")
	fmt.Fprintf(&b, "            <Location code=\"%s\">\n", ref.LocationCode)
	fmt.Fprintf(&b, "                <English>%s</English>\n", ref.Location)
	fmt.Fprintf(&b, "                <French>%s</French>\n", ref.Location)
	b.WriteString("            </Location>\n")
	b.WriteString("        </Weather>")
	return b.String()
}

// Mutator replaces the weather block of archetype files. Files are latin-1.
type Mutator struct {
	logger *logging.Logger
}

// NewMutator creates a new mutator.
func NewMutator(logger *logging.Logger) *Mutator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Mutator{logger: logger}
}

// Mutate returns content with every weather block replaced by ref's block.
// Bytes outside the block are untouched. changed is false when content
// already carries ref.
func (m *Mutator) Mutate(content []byte, ref Reference) (out []byte, changed bool, err error) {
	if !weatherBlock.Match(content) {
		return nil, false, &errors.WeatherFieldNotFoundError{}
	}
	block, err := charmap.ISO8859_1.NewEncoder().String(ref.Block())
	if err != nil {
		return nil, false, fmt.Errorf("encode weather block for %s: %w", ref.Location, err)
	}
	out = weatherBlock.ReplaceAllLiteral(content, []byte(block))
	return out, !bytes.Equal(out, content), nil
}

// MutateFile rewrites path in place, preserving its mode.
func (m *Mutator) MutateFile(path string, ref Reference) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	out, changed, err := m.Mutate(content, ref)
	if err != nil {
		var fieldErr *errors.WeatherFieldNotFoundError
		if errors.As(err, &fieldErr) {
			fieldErr.Path = path
		}
		return false, err
	}
	if !changed {
		m.logger.Debug("weather already set", "path", path, "location", ref.Location)
		return false, nil
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	m.logger.Debug("weather updated", "path", path, "location", ref.Location)
	return true, nil
}

// TreeResult summarises a MutateTree call.
type TreeResult struct {
	Changed   []string
	Unchanged []string
	Failed    map[string]error
}

// MutateTree mutates a single archetype file or every archetype file under a directory.
func (m *Mutator) MutateTree(root string, ref Reference) (*TreeResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	if info.IsDir() {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".h2k") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(paths)
	} else {
		paths = []string{root}
	}

	res := &TreeResult{Failed: map[string]error{}}
	for _, p := range paths {
		changed, err := m.MutateFile(p, ref)
		switch {
		case err != nil:
			res.Failed[p] = err
		case changed:
			res.Changed = append(res.Changed, p)
		default:
			res.Unchanged = append(res.Unchanged, p)
		}
	}
	return res, nil
}
