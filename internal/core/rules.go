package core

import (
	"fmt"

	"stepseq/pkg/domain"
)

type (
	Result             = domain.Result
	Violation          = domain.Violation
	RuleViolationError = domain.RuleViolationError
)

// Rule evaluates an arrangement snapshot.
type Rule interface {
	Name() string
	Evaluate(tracks []Track) Result
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(RuleFunc{RuleName: "positive_step_count", Fn: positiveStepCount})
	engine.Register(RuleFunc{RuleName: "unique_section_index", Fn: uniqueSectionIndex})
	engine.Register(RuleFunc{RuleName: "steps_in_range", Fn: stepsInRange})
	engine.Register(RuleFunc{RuleName: "unique_step_trigger", Fn: uniqueStepTrigger})
	engine.Register(RuleFunc{RuleName: "parent_references", Fn: parentReferences})
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(tracks []Track) Result {
	var combined Result
	for _, rule := range e.rules {
		combined.Merge(rule.Evaluate(tracks))
	}
	return combined
}

// Check evaluates the rules and converts blocking findings into an error.
func (e *RulesEngine) Check(tracks []Track) (Result, error) {
	res := e.Evaluate(tracks)
	if res.HasBlocking() {
		return res, RuleViolationError{Result: res}
	}
	return res, nil
}

// RuleFunc adapts a function into a Rule. Violations without a rule name are
// attributed to RuleName.
type RuleFunc struct {
	RuleName string
	Fn       func(tracks []Track) []Violation
}

// Name implements Rule.
func (f RuleFunc) Name() string { return f.RuleName }

// Evaluate implements Rule.
func (f RuleFunc) Evaluate(tracks []Track) Result {
	violations := f.Fn(tracks)
	for i := range violations {
		if violations[i].Rule == "" {
			violations[i].Rule = f.RuleName
		}
		if violations[i].Severity == "" {
			violations[i].Severity = domain.SeverityBlock
		}
	}
	return Result{Violations: violations}
}

func positiveStepCount(tracks []Track) []Violation {
	var out []Violation
	for _, t := range tracks {
		for _, s := range t.Sections {
			if s.StepCount <= 0 {
				out = append(out, Violation{Entity: domain.EntitySection, EntityID: s.ID,
					Message: fmt.Sprintf("step count %d is not positive", s.StepCount)})
			}
		}
	}
	return out
}

func uniqueSectionIndex(tracks []Track) []Violation {
	var out []Violation
	for _, t := range tracks {
		seen := make(map[int]ID, len(t.Sections))
		for _, s := range t.Sections {
			if other, dup := seen[s.Index]; dup {
				out = append(out, Violation{Entity: domain.EntitySection, EntityID: s.ID,
					Message: fmt.Sprintf("index %d already used by section %s", s.Index, other)})
				continue
			}
			seen[s.Index] = s.ID
		}
	}
	return out
}

func stepsInRange(tracks []Track) []Violation {
	var out []Violation
	for _, t := range tracks {
		for _, s := range t.Sections {
			for _, st := range s.Steps {
				if !s.InRange(st.Index) {
					out = append(out, Violation{Entity: domain.EntityStep, EntityID: st.ID,
						Message: fmt.Sprintf("index %d outside [0, %d)", st.Index, s.StepCount)})
				}
			}
		}
	}
	return out
}

func uniqueStepTrigger(tracks []Track) []Violation {
	var out []Violation
	for _, t := range tracks {
		for _, s := range t.Sections {
			var seen []Step
			for _, st := range s.Steps {
				if IsSelected(seen, st.Index, st.Trigger) {
					err := domain.DuplicateStepError{SectionID: s.ID, Index: st.Index, Trigger: st.Trigger}
					out = append(out, Violation{Entity: domain.EntityStep, EntityID: st.ID, Message: err.Error()})
					continue
				}
				seen = append(seen, st)
			}
		}
	}
	return out
}

func parentReferences(tracks []Track) []Violation {
	var out []Violation
	for _, t := range tracks {
		for _, s := range t.Sections {
			if s.TrackID != t.ID {
				out = append(out, Violation{Entity: domain.EntitySection, EntityID: s.ID,
					Message: fmt.Sprintf("track_id %s does not match owner %s", s.TrackID, t.ID)})
			}
			for _, st := range s.Steps {
				if st.SectionID != s.ID {
					out = append(out, Violation{Entity: domain.EntityStep, EntityID: st.ID,
						Message: fmt.Sprintf("track_section_id %s does not match owner %s", st.SectionID, s.ID)})
				}
				if !st.Trigger.Valid() {
					out = append(out, Violation{Entity: domain.EntityStep, EntityID: st.ID,
						Message: "trigger holds no valid note or sample"})
				}
			}
		}
	}
	return out
}
