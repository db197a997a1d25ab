package requirements

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OverridesFile is the optional per-community override file in the csv directory.
const OverridesFile = "requirement-overrides.yaml"

// OverrideSpec represents the YAML override file
//
//	communities:
//	  old crow:
//	    pre-2000-single:
//	      seed: "survey-2024"
//	      target: 4
type OverrideSpec struct {
	Communities map[string]map[string]RequirementOverride `yaml:"communities"`
}

// RequirementOverride replaces the seed or target of one requirement.
type RequirementOverride struct {
	Seed   *string `yaml:"seed,omitempty"`
	Target *int    `yaml:"target,omitempty"`
}

// ParseOverrides parses an override document.
func ParseOverrides(data []byte) (*OverrideSpec, error) {
	var spec OverrideSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	normalized := make(map[string]map[string]RequirementOverride, len(spec.Communities))
	for community, byKey := range spec.Communities {
		entries := make(map[string]RequirementOverride, len(byKey))
		for key, o := range byKey {
			if o.Target != nil && *o.Target < 0 {
				return nil, fmt.Errorf("override %s/%s: target must be non-negative", community, key)
			}
			entries[strings.ToLower(strings.TrimSpace(key))] = o
		}
		normalized[normalizeCommunity(community)] = entries
	}
	spec.Communities = normalized
	return &spec, nil
}

// LoadOverrides reads path. A missing file yields an empty spec.
func LoadOverrides(path string) (*OverrideSpec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &OverrideSpec{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return ParseOverrides(data)
}

// For returns the override for a community requirement, if any.
func (s *OverrideSpec) For(community, key string) (RequirementOverride, bool) {
	if s == nil {
		return RequirementOverride{}, false
	}
	o, ok := s.Communities[normalizeCommunity(community)][key]
	return o, ok
}

func normalizeCommunity(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
