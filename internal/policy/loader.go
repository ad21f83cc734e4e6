package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// packRule is the YAML form of a rule inside a policy pack.
type packRule struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Priority int        `yaml:"priority"`
	Level    string     `yaml:"level"`
	Enabled  *bool      `yaml:"enabled"`
	Match    Conditions `yaml:"match"`
}

// packFile is the YAML root structure of a policy pack.
type packFile struct {
	Policies []packRule `yaml:"policies"`
}

// LoadPack parses a policy pack. A missing file yields an empty rule set; a
// malformed pack (bad YAML, unknown level tag, duplicate or empty id) is a
// validation error and nothing is returned.
func LoadPack(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy pack: %w", err)
	}

	var pack packFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, utils.ValidationError("policy.LoadPack", "malformed policy pack", err)
	}

	rules := make([]Rule, 0, len(pack.Policies))
	seen := make(map[string]struct{}, len(pack.Policies))
	for _, pr := range pack.Policies {
		if pr.ID == "" {
			return nil, utils.ValidationError("policy.LoadPack", "policy without id", nil)
		}
		if _, dup := seen[pr.ID]; dup {
			return nil, utils.ValidationError("policy.LoadPack", fmt.Sprintf("duplicate policy id %s", pr.ID), nil)
		}
		seen[pr.ID] = struct{}{}

		level, err := models.ParseAutomationLevel(pr.Level)
		if err != nil {
			return nil, utils.ValidationError("policy.LoadPack", fmt.Sprintf("policy %s", pr.ID), err)
		}

		enabled := true
		if pr.Enabled != nil {
			enabled = *pr.Enabled
		}

		rules = append(rules, Rule{
			ID:         pr.ID,
			Name:       pr.Name,
			Conditions: pr.Match,
			Level:      level,
			Priority:   pr.Priority,
			Enabled:    enabled,
		})
	}
	return rules, nil
}
