package models

import "fmt"

// AutomationLevel is the degree of autonomy granted to a remediation decision.
// It is a closed variant: dispatch sites switch exhaustively over the four values
// so a new level cannot be added without updating every branch.
type AutomationLevel int

const (
	// Manual escalates to a human with recommendations only.
	Manual AutomationLevel = iota
	// SemiAuto prepares the remediation but requires human oversight to execute.
	SemiAuto
	// FullAuto executes the top remediation without human involvement.
	FullAuto
	// Adaptive picks one of the other levels from confidence and system load.
	Adaptive
)

// String returns the wire/pack tag for the level.
func (l AutomationLevel) String() string {
	switch l {
	case Manual:
		return "manual"
	case SemiAuto:
		return "semi_auto"
	case FullAuto:
		return "full_auto"
	case Adaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("automation_level(%d)", int(l))
	}
}

// ParseAutomationLevel maps a pack tag to its level. Unknown tags are a
// validation failure; callers must not fall back to a default.
func ParseAutomationLevel(tag string) (AutomationLevel, error) {
	switch tag {
	case "manual":
		return Manual, nil
	case "semi_auto":
		return SemiAuto, nil
	case "full_auto":
		return FullAuto, nil
	case "adaptive":
		return Adaptive, nil
	default:
		return Manual, fmt.Errorf("unknown automation level %q", tag)
	}
}
