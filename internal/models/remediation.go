package models

import "time"

// RemediationStatus tracks a remediation record's lifecycle. Records are never
// silently dropped: every pending record ends up executed or failed.
type RemediationStatus string

const (
	RemediationPending  RemediationStatus = "pending"
	RemediationExecuted RemediationStatus = "executed"
	RemediationFailed   RemediationStatus = "failed"
)

// RemediationRecord is the durable record of one attempted corrective action.
type RemediationRecord struct {
	ID            string            `json:"id"`
	AnomalyID     string            `json:"anomaly_id"`
	ActionType    string            `json:"action_type"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	Status        RemediationStatus `json:"status"`
	Success       bool              `json:"success"`
	ExecutionTime float64           `json:"execution_time"`
	// NeedsApproval marks semi-auto records awaiting human oversight.
	NeedsApproval bool      `json:"needs_approval,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Recommendation is a ranked candidate remediation action.
type Recommendation struct {
	ActionType  string  `json:"action_type"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	// Source records which ranker produced the candidate: "graph" or "fallback".
	Source string `json:"source"`
}

// ExecutionResult is the contract returned by the external remediation executor.
type ExecutionResult struct {
	Success       bool    `json:"success"`
	ExecutionTime float64 `json:"execution_time"`
	Message       string  `json:"message,omitempty"`
}

// ActionOutcome carries everything reward shaping needs about one execution.
type ActionOutcome struct {
	Success           bool
	SystemImprovement float64
	UserSatisfaction  float64
	ActionCost        float64
}
