package core

import (
	"stepseq/pkg/domain"
)

type (
	ID      = domain.ID
	Track   = domain.Track
	Section = domain.Section
	Step    = domain.Step
	Trigger = domain.Trigger
)

// StepDefaults carries the fields a newly toggled step inherits.
type StepDefaults struct {
	SectionID ID
	FileID    ID
}

// Toggle removes the step matching (index, trigger) or appends a new one with a
// temporary id. A sample step always records the sample's own file. The input slice is never modified and the relative order of
// the remaining steps is preserved.
func Toggle(steps []Step, index int, trigger Trigger, defaults StepDefaults) []Step {
	for i, s := range steps {
		if s.Index == index && s.Trigger == trigger {
			out := make([]Step, 0, len(steps)-1)
			out = append(out, steps[:i]...)
			return append(out, steps[i+1:]...)
		}
	}
	fileID := defaults.FileID
	if trigger.Kind == domain.TriggerSample {
		fileID = trigger.FileID
	}
	out := make([]Step, len(steps), len(steps)+1)
	copy(out, steps)
	return append(out, Step{
		ID:        domain.NewTemporaryID(),
		SectionID: defaults.SectionID,
		Index:     index,
		Trigger:   trigger,
		FileID:    fileID,
	})
}

// IsSelected reports whether a step exists for (index, trigger).
func IsSelected(steps []Step, index int, trigger Trigger) bool {
	for _, s := range steps {
		if s.Index == index && s.Trigger == trigger {
			return true
		}
	}
	return false
}

type stepKey struct {
	index   int
	trigger Trigger
}

// StepIndex is a constant-time (index, trigger) lookup built once per render.
type StepIndex struct {
	keys map[stepKey]struct{}
}

// IndexSteps builds a StepIndex over steps.
func IndexSteps(steps []Step) StepIndex {
	keys := make(map[stepKey]struct{}, len(steps))
	for _, s := range steps {
		keys[stepKey{index: s.Index, trigger: s.Trigger}] = struct{}{}
	}
	return StepIndex{keys: keys}
}

// Has reports whether the indexed collection holds (index, trigger).
func (x StepIndex) Has(index int, trigger Trigger) bool {
	_, ok := x.keys[stepKey{index: index, trigger: trigger}]
	return ok
}

// Len returns the number of indexed pairs.
func (x StepIndex) Len() int { return len(x.keys) }

// PruneOutOfRange drops steps whose index is >= bound, and negative indexes.
// The input is returned unchanged when nothing is pruned.
func PruneOutOfRange(steps []Step, bound int) []Step {
	keep := 0
	for _, s := range steps {
		if s.Index >= 0 && s.Index < bound {
			keep++
		}
	}
	if keep == len(steps) {
		return steps
	}
	out := make([]Step, 0, keep)
	for _, s := range steps {
		if s.Index >= 0 && s.Index < bound {
			out = append(out, s)
		}
	}
	return out
}

// InsertStep appends step unless the collection already holds its (index, trigger) pair.
func InsertStep(steps []Step, step Step) ([]Step, error) {
	if IsSelected(steps, step.Index, step.Trigger) {
		return steps, domain.DuplicateStepError{SectionID: step.SectionID, Index: step.Index, Trigger: step.Trigger}
	}
	out := make([]Step, len(steps), len(steps)+1)
	copy(out, steps)
	return append(out, step), nil
}
