package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

func writePack(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestLoadPack(t *testing.T) {
	path := writePack(t, `
policies:
  - id: critical-auto
    name: critical full auto
    priority: 1
    level: full_auto
    match:
      severities: [critical]
      maxSystemLoad: 85
  - id: nightly-manual
    priority: 2
    level: manual
    enabled: false
    match:
      timeWindow:
        startHour: 22
        endHour: 6
`)

	rules, err := LoadPack(path)
	if err != nil {
		t.Fatalf("LoadPack failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	first := rules[0]
	if first.ID != "critical-auto" || first.Level != models.FullAuto || !first.Enabled {
		t.Errorf("unexpected first rule: %+v", first)
	}
	if len(first.Conditions.Severities) != 1 || first.Conditions.Severities[0] != models.SeverityCritical {
		t.Errorf("unexpected severities: %+v", first.Conditions.Severities)
	}
	if first.Conditions.MaxSystemLoad == nil || *first.Conditions.MaxSystemLoad != 85 {
		t.Errorf("unexpected max load: %+v", first.Conditions.MaxSystemLoad)
	}

	second := rules[1]
	if second.Enabled {
		t.Error("expected nightly-manual disabled")
	}
	if second.Conditions.TimeWindow == nil || second.Conditions.TimeWindow.StartHour != 22 {
		t.Errorf("unexpected time window: %+v", second.Conditions.TimeWindow)
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	rules, err := LoadPack(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || rules != nil {
		t.Fatalf("expected empty set for missing file, got %v %v", rules, err)
	}
}

func TestLoadPackRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad yaml", "policies: [\n"},
		{"unknown level", "policies:\n  - id: r1\n    level: turbo\n"},
		{"empty id", "policies:\n  - level: manual\n"},
		{"duplicate id", "policies:\n  - id: r1\n    level: manual\n  - id: r1\n    level: manual\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules, err := LoadPack(writePack(t, tc.content))
			if !utils.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if rules != nil {
				t.Errorf("expected no rules on validation failure, got %v", rules)
			}
		})
	}
}
