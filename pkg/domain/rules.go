package domain

import "fmt"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether an arrangement is accepted.
const (
	// SeverityBlock rejects the arrangement.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but accepted.
	SeverityWarn Severity = "warn"
)

// Violation describes a rule finding against a single entity.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID ID
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s] %s %s: %s", v.Rule, v.Severity, v.Entity, v.EntityID, v.Message)
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks acceptance.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "arrangement rejected by rules: " + v.String()
		}
	}
	return "arrangement rejected by rules"
}
