package learning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsforge/remedy-engine/internal/models"
)

// Discretizer bucketizes continuous telemetry against a fixed threshold
// ladder, producing compact state keys for the tabular agent.
type Discretizer struct {
	thresholds []float64
}

// NewDiscretizer builds a discretizer over the given ladder. The default
// ladder [0, 50, 80, 100] yields three buckets per metric.
func NewDiscretizer(thresholds []float64) *Discretizer {
	if len(thresholds) < 2 {
		thresholds = []float64{0, 50, 80, 100}
	}
	ladder := append([]float64(nil), thresholds...)
	sort.Float64s(ladder)
	return &Discretizer{thresholds: ladder}
}

// Bucket returns the ladder bucket index for a value. Values below the ladder
// map to 0; values at or above the top map to the last bucket.
func (d *Discretizer) Bucket(value float64) int {
	for i := 1; i < len(d.thresholds); i++ {
		if value < d.thresholds[i] {
			return i - 1
		}
	}
	return len(d.thresholds) - 2
}

// StateKey combines the per-metric buckets of a system snapshot with the
// anomaly severity into the agent's state key. Metric order is fixed so equal
// states always map to equal keys.
func (d *Discretizer) StateKey(state models.SystemState, severity models.Severity) string {
	parts := []string{
		fmt.Sprintf("cpu:%d", d.Bucket(state.CPUUsage)),
		fmt.Sprintf("mem:%d", d.Bucket(state.MemoryUsage)),
		fmt.Sprintf("disk:%d", d.Bucket(state.DiskUsage)),
		fmt.Sprintf("err:%d", d.Bucket(state.ErrorRate)),
		fmt.Sprintf("lat:%d", d.Bucket(state.NetworkLatency)),
		fmt.Sprintf("sev:%s", severity),
	}
	return strings.Join(parts, "|")
}
