package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(8)

	if tracker.Count() != 0 {
		t.Errorf("expected empty tracker, count %d", tracker.Count())
	}
	if p := tracker.Percentile(95); p != 0 {
		t.Errorf("expected 0 percentile without samples, got %v", p)
	}
}

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(16)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if tracker.Count() != 10 {
		t.Fatalf("expected 10 samples, got %d", tracker.Count())
	}
	if p := tracker.Percentile(0); p != time.Millisecond {
		t.Errorf("p0 = %v, want 1ms", p)
	}
	if p := tracker.Percentile(100); p != 10*time.Millisecond {
		t.Errorf("p100 = %v, want 10ms", p)
	}
	if p := tracker.Percentile(50); p < 4*time.Millisecond || p > 6*time.Millisecond {
		t.Errorf("p50 = %v, want around 5ms", p)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(4)
	for i := 1; i <= 8; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if tracker.Count() != 4 {
		t.Fatalf("expected ring capacity 4, got %d", tracker.Count())
	}
	// Only 5..8ms remain, so the minimum is 5ms.
	if p := tracker.Percentile(0); p != 5*time.Millisecond {
		t.Errorf("p0 = %v, want 5ms after eviction", p)
	}
}
