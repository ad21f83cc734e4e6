package models

import "time"

// Severity captures anomaly impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3). Unknown values rank as low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AnomalyStatus tracks the lifecycle of a detected anomaly.
type AnomalyStatus string

const (
	AnomalyOpen      AnomalyStatus = "open"
	AnomalyResolved  AnomalyStatus = "resolved"
	AnomalyEscalated AnomalyStatus = "escalated"
)

// AnomalyEvent is a detected anomaly as stored by the platform. The engine only
// mutates its status through orchestrator outcome updates.
type AnomalyEvent struct {
	ID          string             `json:"id"`
	Severity    Severity           `json:"severity"`
	Source      string             `json:"source"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
	Metrics     map[string]float64 `json:"metrics"`
	Status      AnomalyStatus      `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// AnomalyInfo is the read-only projection of an anomaly handed to the policy and
// recommendation layers. Explicit fields rather than a string-keyed bag so a typo
// cannot silently disable a condition.
type AnomalyInfo struct {
	Severity    Severity
	Source      string
	Description string
	Confidence  float64
	Metrics     map[string]float64
}

// Info builds the decision-layer projection of the event.
func (a AnomalyEvent) Info() AnomalyInfo {
	return AnomalyInfo{
		Severity:    a.Severity,
		Source:      a.Source,
		Description: a.Description,
		Confidence:  a.Confidence,
		Metrics:     a.Metrics,
	}
}

// SystemState is a point-in-time telemetry snapshot sourced from the platform.
// Percent-scaled gauges except ErrorRate (errors/sec) and NetworkLatency (ms).
type SystemState struct {
	CPUUsage       float64   `json:"cpu_usage"`
	MemoryUsage    float64   `json:"memory_usage"`
	DiskUsage      float64   `json:"disk_usage"`
	ErrorRate      float64   `json:"error_rate"`
	NetworkLatency float64   `json:"network_latency"`
	Timestamp      time.Time `json:"timestamp"`
}

// Load reports the headline system load used by policy ceilings and adaptive
// routing. CPU is the load proxy the platform dashboards use.
func (s SystemState) Load() float64 {
	return s.CPUUsage
}
