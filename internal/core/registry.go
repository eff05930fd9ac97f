package core

import (
	"fmt"
	"sync"

	"stepseq/pkg/domain"
)

// Observer receives registry transitions. Callbacks run while the registry
// lock is held and must not call back into the registry.
type Observer interface {
	// TracksChanged is called after a mutation published a new collection.
	TracksChanged(before, after []Track)
	// IDReassigned is called when a temporary id was replaced by a persisted
	// one. found is false when no entity carried the temporary id any more.
	IDReassigned(kind domain.EntityType, from, to ID, found bool)
}

// Registry is the ordered aggregate root of an editing session. Every mutation
// computes a new collection from the current one and publishes it with a
// single assignment, so collections returned by List are never modified.
type Registry struct {
	mu        sync.RWMutex
	tracks    []Track
	revision  uint64
	observers []Observer
	// aliases maps reassigned temporary ids to their persisted ids.
	aliases map[ID]ID
}

// NewRegistry constructs an empty registry.
func NewRegistry(observers ...Observer) *Registry {
	return &Registry{observers: observers, aliases: map[ID]ID{}}
}

// Observe registers an additional observer.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// List returns the current collection. Callers must treat it as read-only.
func (r *Registry) List() []Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks
}

// Revision increments on every published collection.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// FindByID returns the track with the given id.
func (r *Registry) FindByID(id ID) (Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.tracks[i], true
	}
	return Track{}, false
}

// FindSection returns a section and its owning track.
func (r *Registry) FindSection(sectionID ID) (Section, Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sectionID = r.resolve(sectionID)
	for _, t := range r.tracks {
		for _, s := range t.Sections {
			if s.ID == sectionID {
				return s, t, true
			}
		}
	}
	return Section{}, Track{}, false
}

// Add appends a track. Missing ids are allocated and child references are
// bound to their parents.
func (r *Registry) Add(track Track) Track {
	track = BindTrack(track)
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Track, len(r.tracks), len(r.tracks)+1)
	copy(next, r.tracks)
	r.publish(append(next, track))
	return track
}

// RemoveByID drops the track and everything it owns.
func (r *Registry) RemoveByID(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	next := make([]Track, 0, len(r.tracks)-1)
	next = append(next, r.tracks[:i]...)
	r.publish(append(next, r.tracks[i+1:]...))
	return true
}

// UpdateByID replaces the track in place with the result of patch. The id is
// preserved whatever patch returns.
func (r *Registry) UpdateByID(id ID, patch func(Track) Track) (Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(id, func(t Track) (Track, error) { return patch(t), nil })
}

// AddSection inserts a section into a track's timeline at index at.
func (r *Registry) AddSection(trackID ID, section Section, at int) (Section, error) {
	if section.StepCount <= 0 {
		return Section{}, fmt.Errorf("add section with %d steps: %w", section.StepCount, domain.ErrInvalidStepCount)
	}
	if section.ID == "" {
		section.ID = domain.NewTemporaryID()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, err := r.updateLocked(trackID, func(t Track) (Track, error) {
		t.Sections = InsertSection(t.Sections, section, at)
		return t, nil
	})
	if err != nil {
		return Section{}, err
	}
	for _, s := range updated.Sections {
		if s.ID == section.ID {
			return s, nil
		}
	}
	return Section{}, domain.ErrNotFound{Entity: domain.EntitySection, ID: section.ID}
}

// RemoveSection drops a section from its track.
func (r *Registry) RemoveSection(trackID, sectionID ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sectionID = r.resolve(sectionID)
	removed := false
	_, err := r.updateLocked(trackID, func(t Track) (Track, error) {
		next := RemoveSection(t.Sections, sectionID)
		removed = len(next) != len(t.Sections)
		t.Sections = next
		return t, nil
	})
	return removed, err
}

// ReorderSection moves a section to a new position within its track.
func (r *Registry) ReorderSection(trackID, sectionID ID, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sectionID = r.resolve(sectionID)
	_, err := r.updateLocked(trackID, func(t Track) (Track, error) {
		next, err := ReorderSection(t.Sections, sectionID, position)
		if err != nil {
			return t, err
		}
		t.Sections = next
		return t, nil
	})
	return err
}

// ResizeSection changes a section's step count, pruning steps outside the new
// domain. On ErrInvalidStepCount nothing is published.
func (r *Registry) ResizeSection(trackID, sectionID ID, stepCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sectionID = r.resolve(sectionID)
	_, err := r.updateLocked(trackID, func(t Track) (Track, error) {
		next, err := ResizeSection(t.Sections, sectionID, stepCount)
		if err != nil {
			return t, err
		}
		t.Sections = next
		return t, nil
	})
	return err
}

// ToggleStep flips (index, trigger) in a section and reports whether the pair
// is selected afterwards. fileID is the source file recorded on new steps.
func (r *Registry) ToggleStep(trackID, sectionID ID, index int, trigger Trigger, fileID ID) (bool, error) {
	if !trigger.Valid() {
		return false, fmt.Errorf("toggle step: invalid trigger %s", trigger)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sectionID = r.resolve(sectionID)
	selected := false
	_, err := r.updateLocked(trackID, func(t Track) (Track, error) {
		i := findSection(t.Sections, sectionID)
		if i < 0 {
			return t, fmt.Errorf("toggle step in section %s: %w", sectionID, domain.ErrOrphanedStep)
		}
		section := t.Sections[i]
		if !section.InRange(index) {
			return t, fmt.Errorf("toggle step %d of %d: %w", index, section.StepCount, domain.ErrStepOutOfRange)
		}
		section.Steps = Toggle(section.Steps, index, trigger, StepDefaults{SectionID: section.ID, FileID: fileID})
		selected = IsSelected(section.Steps, index, trigger)
		sections := make([]Section, len(t.Sections))
		copy(sections, t.Sections)
		sections[i] = section
		t.Sections = sections
		return t, nil
	})
	return selected, err
}

// ReassignID replaces a temporary id with its persisted counterpart and
// rewrites the parent reference of direct children. The temporary id stays
// usable as an alias. It does not notify TracksChanged observers since no edit
// took place.
func (r *Registry) ReassignID(kind domain.EntityType, from, to ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	next := make([]Track, len(r.tracks))
	for ti, t := range r.tracks {
		if kind == domain.EntityTrack && t.ID == from {
			found = true
			t.ID = to
			t = BindTrack(t)
		}
		if kind != domain.EntityTrack {
			sections := make([]Section, len(t.Sections))
			for si, s := range t.Sections {
				if kind == domain.EntitySection && s.ID == from {
					found = true
					s.ID = to
					s = bindSection(s)
				}
				if kind == domain.EntityStep {
					for _, st := range s.Steps {
						if st.ID == from {
							found = true
							steps := make([]Step, len(s.Steps))
							copy(steps, s.Steps)
							for k := range steps {
								if steps[k].ID == from {
									steps[k].ID = to
								}
							}
							s.Steps = steps
							break
						}
					}
				}
				sections[si] = s
			}
			t.Sections = sections
		}
		next[ti] = t
	}
	if found {
		r.tracks = next
		r.revision++
		r.aliases[from] = to
	}
	for _, o := range r.observers {
		o.IDReassigned(kind, from, to, found)
	}
	return found
}

// Reset replaces the whole collection without notifying TracksChanged
// observers. It is used when reloading from persistence.
func (r *Registry) Reset(tracks []Track) {
	next := make([]Track, len(tracks))
	for i, t := range tracks {
		next[i] = BindTrack(t)
	}
	r.mu.Lock()
	r.tracks = next
	r.revision++
	r.aliases = map[ID]ID{}
	r.mu.Unlock()
}

// resolve follows the alias of a reassigned temporary id. Temporary ids are
// never reused, so an alias cannot shadow a live entity.
func (r *Registry) resolve(id ID) ID {
	if to, ok := r.aliases[id]; ok {
		return to
	}
	return id
}

func (r *Registry) indexOf(id ID) int {
	id = r.resolve(id)
	for i, t := range r.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) updateLocked(id ID, fn func(Track) (Track, error)) (Track, error) {
	i := r.indexOf(id)
	if i < 0 {
		return Track{}, domain.ErrNotFound{Entity: domain.EntityTrack, ID: id}
	}
	updated, err := fn(r.tracks[i])
	if err != nil {
		return Track{}, err
	}
	updated.ID = r.tracks[i].ID
	updated = BindTrack(updated)
	next := make([]Track, len(r.tracks))
	copy(next, r.tracks)
	next[i] = updated
	r.publish(next)
	return updated, nil
}

func (r *Registry) publish(next []Track) {
	before := r.tracks
	r.tracks = next
	r.revision++
	for _, o := range r.observers {
		o.TracksChanged(before, next)
	}
}

// BindTrack allocates missing ids and points children at their parents. The
// input's slices are copied before any write.
func BindTrack(t Track) Track {
	if t.ID == "" {
		t.ID = domain.NewTemporaryID()
	}
	if len(t.Sections) == 0 {
		return t
	}
	sections := make([]Section, len(t.Sections))
	for i, s := range t.Sections {
		if s.ID == "" {
			s.ID = domain.NewTemporaryID()
		}
		s.TrackID = t.ID
		sections[i] = bindSection(s)
	}
	t.Sections = sections
	return t
}

func bindSection(s Section) Section {
	if len(s.Steps) == 0 {
		return s
	}
	needs := false
	for _, st := range s.Steps {
		if st.ID == "" || st.SectionID != s.ID {
			needs = true
			break
		}
	}
	if !needs {
		return s
	}
	steps := make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		if st.ID == "" {
			st.ID = domain.NewTemporaryID()
		}
		st.SectionID = s.ID
		steps[i] = st
	}
	s.Steps = steps
	return s
}
