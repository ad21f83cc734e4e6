package models

import "time"

// DecisionStatus labels the outcome of one orchestrated decision.
type DecisionStatus string

const (
	DecisionEscalated    DecisionStatus = "escalated"
	DecisionPendingHuman DecisionStatus = "pending_approval"
	DecisionExecuted     DecisionStatus = "executed"
	DecisionFailed       DecisionStatus = "failed"
	DecisionNotFound     DecisionStatus = "not_found"
	DecisionError        DecisionStatus = "error"
)

// DecisionResult is the structured result of processing one anomaly. The
// orchestrator never lets an error escape; failures surface here as a status
// plus message.
type DecisionResult struct {
	AnomalyID       string             `json:"anomaly_id"`
	Status          DecisionStatus     `json:"status"`
	Level           AutomationLevel    `json:"level"`
	MatchedRuleID   string             `json:"matched_rule_id,omitempty"`
	Recommendations []Recommendation   `json:"recommendations,omitempty"`
	Record          *RemediationRecord `json:"record,omitempty"`
	Message         string             `json:"message,omitempty"`
}

// AuditEvent is the flat per-decision record emitted to the audit sink. Format
// and transport beyond this struct are the caller's concern.
type AuditEvent struct {
	AnomalyID  string          `json:"anomaly_id"`
	Level      AutomationLevel `json:"automation_level"`
	ActionType string          `json:"action_type,omitempty"`
	Success    bool            `json:"success"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Stats are the orchestrator's running automation counters.
type Stats struct {
	TotalAutomations      int       `json:"total_automations"`
	SuccessfulAutomations int       `json:"successful_automations"`
	FailedAutomations     int       `json:"failed_automations"`
	ManualInterventions   int       `json:"manual_interventions"`
	LastAutomation        time.Time `json:"last_automation"`
}

// SuccessRate is successful/total, zero when nothing has been automated yet.
func (s Stats) SuccessRate() float64 {
	if s.TotalAutomations == 0 {
		return 0
	}
	return float64(s.SuccessfulAutomations) / float64(s.TotalAutomations)
}
