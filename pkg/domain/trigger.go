package domain

import "fmt"

// TriggerKind tags the variant held by a Trigger.
type TriggerKind string

const (
	// TriggerNote fires a pitch, used by the piano roll.
	TriggerNote TriggerKind = "note"
	// TriggerSample fires a sample file, used by the sample grid.
	TriggerSample TriggerKind = "sample"
)

// Trigger is the discriminator of a step: either a note or a sample reference.
// Only the field matching Kind is set, so triggers compare with ==.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Pitch  Pitch       `json:"pitch,omitempty"`
	FileID ID          `json:"file_id,omitempty"`
}

// NoteTrigger returns a trigger firing the pitch.
func NoteTrigger(p Pitch) Trigger {
	return Trigger{Kind: TriggerNote, Pitch: p}
}

// SampleTrigger returns a trigger firing the sample file.
func SampleTrigger(fileID ID) Trigger {
	return Trigger{Kind: TriggerSample, FileID: fileID}
}

// IsZero reports whether no variant is set.
func (t Trigger) IsZero() bool { return t == Trigger{} }

// Valid reports whether the trigger holds exactly one well-formed variant.
func (t Trigger) Valid() bool {
	switch t.Kind {
	case TriggerNote:
		return t.FileID == "" && t.Pitch <= MaxPitch
	case TriggerSample:
		return t.FileID != "" && t.Pitch == 0
	}
	return false
}

func (t Trigger) String() string {
	switch t.Kind {
	case TriggerNote:
		return t.Pitch.String()
	case TriggerSample:
		return "sample:" + string(t.FileID)
	}
	return "none"
}

// TriggerFromColumns decodes the persisted note/file_id pair.
func TriggerFromColumns(note string, fileID ID) (Trigger, error) {
	if note != "" {
		p, err := ParsePitch(note)
		if err != nil {
			return Trigger{}, err
		}
		return NoteTrigger(p), nil
	}
	if fileID != "" {
		return SampleTrigger(fileID), nil
	}
	return Trigger{}, fmt.Errorf("step has neither note nor file_id")
}
