// Package domain defines the sequencing entities, identifiers and trigger values
// shared by the stepseq core, its stores and its adapters.
package domain

// EntityType identifies the type of record exchanged with persistence.
type EntityType string

// Supported entity type identifiers used in Change records and store calls.
const (
	// EntityTrack identifies a track record.
	EntityTrack EntityType = "track"
	// EntitySection identifies a track section record.
	EntitySection EntityType = "section"
	// EntityStep identifies a track section step record.
	EntityStep EntityType = "step"
	// EntityFile identifies a sample file; files live in blob storage, not the Store.
	EntityFile EntityType = "file"
)

// ID is an entity identifier. It is either assigned by a store or a temporary
// identifier produced by NewTemporaryID.
type ID string

func (id ID) String() string { return string(id) }

// IsTemporary reports whether the identifier was allocated locally.
func (id ID) IsTemporary() bool { return IsTemporary(id) }

// Entity is a single persisted record: a track, section or step without its
// children. Stores receive and return entities through this interface.
type Entity interface {
	EntityType() EntityType
	EntityID() ID
	ParentID() ID
	// Rebind returns a copy carrying the supplied identity and parent reference.
	Rebind(id, parentID ID) Entity
}

// Track is a named channel holding an ordered arrangement of sections.
type Track struct {
	ID        ID        `json:"id"`
	ProjectID ID        `json:"project_id,omitempty"`
	Name      string    `json:"name"`
	Mute      bool      `json:"mute"`
	Solo      bool      `json:"solo"`
	Sections  []Section `json:"sections,omitempty"`
}

// EntityType implements Entity.
func (t Track) EntityType() EntityType { return EntityTrack }

// EntityID implements Entity.
func (t Track) EntityID() ID { return t.ID }

// ParentID returns the owning project.
func (t Track) ParentID() ID { return t.ProjectID }

// Rebind implements Entity.
func (t Track) Rebind(id, parentID ID) Entity {
	t.ID = id
	t.ProjectID = parentID
	return t
}

// Record returns the track without its sections.
func (t Track) Record() Track {
	t.Sections = nil
	return t
}

// SameRecord reports whether the persisted columns of both tracks match.
func (t Track) SameRecord(o Track) bool {
	return t.ID == o.ID && t.ProjectID == o.ProjectID && t.Name == o.Name && t.Mute == o.Mute && t.Solo == o.Solo
}

// Section is a fixed-length segment of a track timeline. Index orders sections
// within a track; StepCount bounds the step index domain [0, StepCount).
type Section struct {
	ID        ID     `json:"id"`
	TrackID   ID     `json:"track_id"`
	Index     int    `json:"index"`
	StepCount int    `json:"step_count"`
	Steps     []Step `json:"steps,omitempty"`
}

// EntityType implements Entity.
func (s Section) EntityType() EntityType { return EntitySection }

// EntityID implements Entity.
func (s Section) EntityID() ID { return s.ID }

// ParentID returns the owning track.
func (s Section) ParentID() ID { return s.TrackID }

// Rebind implements Entity.
func (s Section) Rebind(id, parentID ID) Entity {
	s.ID = id
	s.TrackID = parentID
	return s
}

// Record returns the section without its steps.
func (s Section) Record() Section {
	s.Steps = nil
	return s
}

// SameRecord reports whether the persisted columns of both sections match.
func (s Section) SameRecord(o Section) bool {
	return s.ID == o.ID && s.TrackID == o.TrackID && s.Index == o.Index && s.StepCount == o.StepCount
}

// InRange reports whether index lies in the section's step domain.
func (s Section) InRange(index int) bool {
	return index >= 0 && index < s.StepCount
}

// Step is a trigger at a specific index within a section. FileID is the
// optional source file, e.g. the sample a piano-roll note is played with.
type Step struct {
	ID        ID      `json:"id"`
	SectionID ID      `json:"track_section_id"`
	Index     int     `json:"index"`
	Trigger   Trigger `json:"trigger"`
	FileID    ID      `json:"file_id,omitempty"`
}

// EntityType implements Entity.
func (s Step) EntityType() EntityType { return EntityStep }

// EntityID implements Entity.
func (s Step) EntityID() ID { return s.ID }

// ParentID returns the owning section.
func (s Step) ParentID() ID { return s.SectionID }

// Rebind implements Entity.
func (s Step) Rebind(id, parentID ID) Entity {
	s.ID = id
	s.SectionID = parentID
	return s
}

// Columns returns the persisted note and file_id columns of the step. A note
// trigger stores its pitch name and the source file; a sample trigger stores an
// empty note and the sample file.
func (s Step) Columns() (note string, fileID ID) {
	switch s.Trigger.Kind {
	case TriggerNote:
		return s.Trigger.Pitch.String(), s.FileID
	case TriggerSample:
		return "", s.Trigger.FileID
	}
	return "", s.FileID
}

// StepFromColumns rebuilds a step from its persisted columns.
func StepFromColumns(id, sectionID ID, index int, note string, fileID ID) (Step, error) {
	trigger, err := TriggerFromColumns(note, fileID)
	if err != nil {
		return Step{}, err
	}
	return Step{ID: id, SectionID: sectionID, Index: index, Trigger: trigger, FileID: fileID}, nil
}

// Change describes a mutation of a single entity between two registry states.
type Change struct {
	Entity EntityType
	Action Action
	Before Entity
	After  Entity
}

// Target returns the entity the change applies to.
func (c Change) Target() Entity {
	if c.After != nil {
		return c.After
	}
	return c.Before
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the persistence operations produced by edits.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
