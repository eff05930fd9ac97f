package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStepCount is returned when a section would get a non-positive step count.
	ErrInvalidStepCount = errors.New("step count must be positive")
	// ErrDuplicateStep matches any DuplicateStepError.
	ErrDuplicateStep = errors.New("duplicate step")
	// ErrOrphanedStep reports a step operation against a section that no longer exists.
	ErrOrphanedStep = errors.New("step references a missing section")
	// ErrStepOutOfRange reports a step index outside its section's domain.
	ErrStepOutOfRange = errors.New("step index out of range")
)

// DuplicateStepError is returned by direct-insert paths when a section already
// holds a step with the same index and trigger.
type DuplicateStepError struct {
	SectionID ID
	Index     int
	Trigger   Trigger
}

func (e DuplicateStepError) Error() string {
	return fmt.Sprintf("section %s already has %s at step %d", e.SectionID, e.Trigger, e.Index)
}

// Is makes errors.Is(err, ErrDuplicateStep) match.
func (e DuplicateStepError) Is(target error) bool { return target == ErrDuplicateStep }

// ReconciliationConflict describes a create that resolved after the entity was
// deleted locally. The persisted identifier is discarded.
type ReconciliationConflict struct {
	Entity      EntityType
	TemporaryID ID
	PersistedID ID
}

func (e ReconciliationConflict) Error() string {
	return fmt.Sprintf("%s %s was deleted before create resolved as %s", e.Entity, e.TemporaryID, e.PersistedID)
}

// ErrNotFound is returned when a lookup by identifier fails.
type ErrNotFound struct {
	Entity EntityType
	ID     ID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
