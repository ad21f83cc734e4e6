package policy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func floatPtr(v float64) *float64 { return &v }

func TestSelectNoMatchDefaultsToManual(t *testing.T) {
	engine := testEngine()

	level, rule := engine.Select(models.AnomalyInfo{Severity: models.SeverityLow}, models.SystemState{})
	if level != models.Manual || rule != nil {
		t.Fatalf("expected Manual with no rule, got %s %v", level, rule)
	}
}

func TestSelectPriorityWins(t *testing.T) {
	engine := testEngine()

	// Registered second but lower priority value, so it wins.
	if err := engine.Add(Rule{ID: "broad", Level: models.SemiAuto, Priority: 2, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(Rule{ID: "specific", Level: models.FullAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	level, rule := engine.Select(models.AnomalyInfo{Severity: models.SeverityHigh}, models.SystemState{})
	if level != models.FullAuto || rule == nil || rule.ID != "specific" {
		t.Fatalf("expected specific rule to win, got %s %v", level, rule)
	}
}

func TestSelectTieBreaksByRegistrationOrder(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "first", Level: models.SemiAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(Rule{ID: "second", Level: models.FullAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, rule := engine.Select(models.AnomalyInfo{}, models.SystemState{})
	if rule == nil || rule.ID != "first" {
		t.Fatalf("expected earliest-registered rule on tie, got %v", rule)
	}
}

func TestEvaluateConditions(t *testing.T) {
	engine := testEngine()
	engine.now = func() time.Time {
		return time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	}

	cases := []struct {
		name  string
		rule  Rule
		info  models.AnomalyInfo
		state models.SystemState
		want  bool
	}{
		{
			name: "severity match",
			rule: Rule{Conditions: Conditions{Severities: []models.Severity{models.SeverityCritical}}},
			info: models.AnomalyInfo{Severity: models.SeverityCritical},
			want: true,
		},
		{
			name: "severity mismatch",
			rule: Rule{Conditions: Conditions{Severities: []models.Severity{models.SeverityCritical}}},
			info: models.AnomalyInfo{Severity: models.SeverityLow},
			want: false,
		},
		{
			name: "inside time window",
			rule: Rule{Conditions: Conditions{TimeWindow: &TimeWindow{StartHour: 8, EndHour: 20}}},
			want: true,
		},
		{
			name: "outside time window",
			rule: Rule{Conditions: Conditions{TimeWindow: &TimeWindow{StartHour: 20, EndHour: 8}}},
			want: false,
		},
		{
			name:  "load under ceiling",
			rule:  Rule{Conditions: Conditions{MaxSystemLoad: floatPtr(80)}},
			state: models.SystemState{CPUUsage: 60},
			want:  true,
		},
		{
			name:  "load over ceiling",
			rule:  Rule{Conditions: Conditions{MaxSystemLoad: floatPtr(80)}},
			state: models.SystemState{CPUUsage: 95},
			want:  false,
		},
		{
			name: "confidence under floor",
			rule: Rule{Conditions: Conditions{MinConfidence: floatPtr(0.7)}},
			info: models.AnomalyInfo{Confidence: 0.5},
			want: false,
		},
		{
			name: "no conditions always matches",
			rule: Rule{},
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.Evaluate(&tc.rule, tc.info, tc.state); got != tc.want {
				t.Errorf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTimeWindowWrapsMidnight(t *testing.T) {
	engine := testEngine()
	engine.now = func() time.Time {
		return time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	}

	rule := Rule{Conditions: Conditions{TimeWindow: &TimeWindow{StartHour: 22, EndHour: 6}}}
	if !engine.Evaluate(&rule, models.AnomalyInfo{}, models.SystemState{}) {
		t.Error("expected 23:00 inside 22-06 window")
	}

	engine.now = func() time.Time {
		return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	}
	if engine.Evaluate(&rule, models.AnomalyInfo{}, models.SystemState{}) {
		t.Error("expected 12:00 outside 22-06 window")
	}
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "off", Level: models.FullAuto, Priority: 1, Enabled: false}); err != nil {
		t.Fatalf("add: %v", err)
	}

	level, rule := engine.Select(models.AnomalyInfo{}, models.SystemState{})
	if level != models.Manual || rule != nil {
		t.Fatalf("disabled rule must not match, got %s %v", level, rule)
	}
}

func TestAddUpsertPreservesOrder(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "r1", Level: models.SemiAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(Rule{ID: "r2", Level: models.SemiAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Replace r1; it should still win the priority tie as first-registered.
	if err := engine.Add(Rule{ID: "r1", Level: models.FullAuto, Priority: 1, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	level, rule := engine.Select(models.AnomalyInfo{}, models.SystemState{})
	if level != models.FullAuto || rule == nil || rule.ID != "r1" {
		t.Fatalf("expected replaced r1 to keep registration order, got %s %v", level, rule)
	}
}

func TestAddValidation(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{Level: models.Manual}); !utils.IsValidation(err) {
		t.Errorf("expected validation error for empty id, got %v", err)
	}
	if err := engine.Add(Rule{ID: "bad", Level: models.AutomationLevel(42)}); !utils.IsValidation(err) {
		t.Errorf("expected validation error for bad level, got %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "r1", Name: "orig", Level: models.SemiAuto, Priority: 5, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	newPriority := 1
	if err := engine.Update("r1", RuleUpdate{Priority: &newPriority}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rules := engine.Rules()
	if len(rules) != 1 || rules[0].Priority != 1 || rules[0].Name != "orig" || rules[0].Level != models.SemiAuto {
		t.Fatalf("partial update touched unrelated fields: %+v", rules[0])
	}

	if err := engine.Update("missing", RuleUpdate{}); !utils.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "r1", Level: models.Manual, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Remove("r1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.Remove("r1"); !utils.IsNotFound(err) {
		t.Errorf("expected not-found on second remove, got %v", err)
	}
}

func TestReplaceAllSwapsAtomically(t *testing.T) {
	engine := testEngine()

	if err := engine.Add(Rule{ID: "old", Level: models.Manual, Enabled: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	engine.ReplaceAll([]Rule{
		{ID: "a", Level: models.SemiAuto, Priority: 1, Enabled: true},
		{ID: "b", Level: models.FullAuto, Priority: 1, Enabled: true},
	})

	rules := engine.Rules()
	if len(rules) != 2 || rules[0].ID != "a" {
		t.Fatalf("unexpected rules after swap: %+v", rules)
	}

	// Tie breaks by slice order after the swap.
	_, rule := engine.Select(models.AnomalyInfo{}, models.SystemState{})
	if rule == nil || rule.ID != "a" {
		t.Fatalf("expected slice order to seed registration order, got %v", rule)
	}
}
