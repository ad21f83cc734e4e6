package models

import "testing"

func TestAutomationLevelRoundTrip(t *testing.T) {
	levels := []AutomationLevel{Manual, SemiAuto, FullAuto, Adaptive}
	for _, level := range levels {
		parsed, err := ParseAutomationLevel(level.String())
		if err != nil {
			t.Fatalf("parse %q: %v", level.String(), err)
		}
		if parsed != level {
			t.Errorf("round trip %q: got %v", level.String(), parsed)
		}
	}
}

func TestParseAutomationLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseAutomationLevel("autopilot"); err == nil {
		t.Fatal("expected error for unknown tag")
	}
	if _, err := ParseAutomationLevel(""); err == nil {
		t.Fatal("expected error for empty tag")
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityCritical.Rank() <= SeverityHigh.Rank() || SeverityHigh.Rank() <= SeverityMedium.Rank() ||
		SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Error("severity ranks not strictly increasing")
	}
	if Severity("bogus").Rank() != SeverityLow.Rank() {
		t.Error("unknown severity should rank as low")
	}
}

func TestStatsSuccessRate(t *testing.T) {
	if (Stats{}).SuccessRate() != 0 {
		t.Error("expected 0 success rate with no automations")
	}
	stats := Stats{TotalAutomations: 4, SuccessfulAutomations: 3}
	if stats.SuccessRate() != 0.75 {
		t.Errorf("expected 0.75, got %f", stats.SuccessRate())
	}
}
