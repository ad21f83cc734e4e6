package policy

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// TimeWindow restricts a rule to a daily hour range [StartHour, EndHour).
// A window wrapping midnight (start > end) is honoured.
type TimeWindow struct {
	StartHour int `yaml:"startHour" json:"start_hour"`
	EndHour   int `yaml:"endHour" json:"end_hour"`
}

// Conditions is the open-world condition set of a rule: a nil/empty field is
// not checked. Explicit fields rather than a string-keyed map so a key typo
// cannot silently turn a condition into a no-op.
type Conditions struct {
	Severities    []models.Severity `yaml:"severities" json:"severities,omitempty"`
	TimeWindow    *TimeWindow       `yaml:"timeWindow" json:"time_window,omitempty"`
	MaxSystemLoad *float64          `yaml:"maxSystemLoad" json:"max_system_load,omitempty"`
	MinConfidence *float64          `yaml:"minConfidence" json:"min_confidence,omitempty"`
}

// Rule maps an anomaly/state shape to an automation level. Lower Priority wins;
// ties break by registration order.
type Rule struct {
	ID         string
	Name       string
	Conditions Conditions
	Level      models.AutomationLevel
	Priority   int
	Enabled    bool

	// seq preserves registration order for deterministic tie-breaking.
	seq int
}

// RuleUpdate is a partial rule mutation; nil fields are left untouched.
type RuleUpdate struct {
	Name       *string
	Conditions *Conditions
	Level      *models.AutomationLevel
	Priority   *int
	Enabled    *bool
}

// Engine evaluates prioritized rules against anomalies. Rule mutation is atomic
// with respect to concurrent Select calls.
type Engine struct {
	mu      sync.RWMutex
	rules   []*Rule
	nextSeq int

	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs an empty policy engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, now: time.Now}
}

// Evaluate reports whether every condition present in the rule holds for the
// anomaly/state pair. Absent conditions are not checked.
func (e *Engine) Evaluate(rule *Rule, info models.AnomalyInfo, state models.SystemState) bool {
	if rule == nil {
		return false
	}

	if len(rule.Conditions.Severities) > 0 {
		found := false
		for _, sev := range rule.Conditions.Severities {
			if sev == info.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if tw := rule.Conditions.TimeWindow; tw != nil {
		hour := e.now().Hour()
		if tw.StartHour <= tw.EndHour {
			if hour < tw.StartHour || hour >= tw.EndHour {
				return false
			}
		} else if hour < tw.StartHour && hour >= tw.EndHour {
			return false
		}
	}

	if max := rule.Conditions.MaxSystemLoad; max != nil && state.Load() > *max {
		return false
	}

	if min := rule.Conditions.MinConfidence; min != nil && info.Confidence < *min {
		return false
	}

	return true
}

// Select returns the automation level for the anomaly/state pair along with the
// matched rule. When no enabled rule matches, the decision defaults to Manual
// with no rule.
func (e *Engine) Select(info models.AnomalyInfo, state models.SystemState) (models.AutomationLevel, *Rule) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *Rule
	for _, rule := range e.rules {
		if !rule.Enabled || !e.Evaluate(rule, info, state) {
			continue
		}
		if best == nil || rule.Priority < best.Priority ||
			(rule.Priority == best.Priority && rule.seq < best.seq) {
			best = rule
		}
	}

	if best == nil {
		return models.Manual, nil
	}
	matched := *best
	return best.Level, &matched
}

// Add inserts the rule, replacing any existing rule with the same id while
// preserving its registration order.
func (e *Engine) Add(rule Rule) error {
	if rule.ID == "" {
		return utils.ValidationError("policy.Add", "rule id is required", nil)
	}
	if rule.Level < models.Manual || rule.Level > models.Adaptive {
		return utils.ValidationError("policy.Add", fmt.Sprintf("invalid automation level %d", rule.Level), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.rules {
		if existing.ID == rule.ID {
			rule.seq = existing.seq
			e.rules[i] = &rule
			return nil
		}
	}
	rule.seq = e.nextSeq
	e.nextSeq++
	e.rules = append(e.rules, &rule)
	return nil
}

// Remove deletes a rule by id.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, rule := range e.rules {
		if rule.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return nil
		}
	}
	return utils.NotFoundError("policy.Remove", fmt.Sprintf("rule %s not found", id))
}

// Update merges the non-nil fields of upd into the rule with the given id.
func (e *Engine) Update(id string, upd RuleUpdate) error {
	if upd.Level != nil && (*upd.Level < models.Manual || *upd.Level > models.Adaptive) {
		return utils.ValidationError("policy.Update", fmt.Sprintf("invalid automation level %d", *upd.Level), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		if rule.ID != id {
			continue
		}
		if upd.Name != nil {
			rule.Name = *upd.Name
		}
		if upd.Conditions != nil {
			rule.Conditions = *upd.Conditions
		}
		if upd.Level != nil {
			rule.Level = *upd.Level
		}
		if upd.Priority != nil {
			rule.Priority = *upd.Priority
		}
		if upd.Enabled != nil {
			rule.Enabled = *upd.Enabled
		}
		return nil
	}
	return utils.NotFoundError("policy.Update", fmt.Sprintf("rule %s not found", id))
}

// ReplaceAll swaps the entire rule set atomically, used by pack hot reload.
// Registration order follows slice order.
func (e *Engine) ReplaceAll(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = make([]*Rule, 0, len(rules))
	e.nextSeq = 0
	for _, rule := range rules {
		r := rule
		r.seq = e.nextSeq
		e.nextSeq++
		e.rules = append(e.rules, &r)
	}
}

// Rules returns a copy of the current rule set in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}
	return out
}
