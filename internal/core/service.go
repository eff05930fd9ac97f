package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stepseq/internal/infra/persistence/memory"
	"stepseq/internal/outbox"
	"stepseq/pkg/domain"
)

// ErrSyncBlocked is returned when the head of the outbox is a create whose
// parent has not been persisted yet.
var ErrSyncBlocked = errors.New("sync blocked on unpersisted parent")

// SyncStatus reports the reconciliation state of a session.
type SyncStatus struct {
	Pending      int
	LastError    error
	LastSyncedAt time.Time
}

// Synced reports whether every local edit reached the store.
func (s SyncStatus) Synced() bool { return s.Pending == 0 && s.LastError == nil }

// Service is an editing session: the registry is the source of truth and every
// published change is queued in the outbox for the store.
type Service struct {
	registry *Registry
	outbox   *outbox.Outbox
	store    domain.Store

	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	engine     *RulesEngine
	interval   time.Duration
	maxBackoff time.Duration

	notify chan struct{}
	syncMu sync.Mutex

	mu        sync.Mutex
	projectID ID
	lastErr   error
	lastSync  time.Time
}

// NewService constructs a session backed by store.
func NewService(store domain.Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{
		outbox:     outbox.New(),
		store:      store,
		logger:     o.logger,
		clock:      o.clock,
		metrics:    o.metrics,
		tracer:     o.tracer,
		engine:     o.engine,
		interval:   o.interval,
		maxBackoff: o.maxBackoff,
		notify:     make(chan struct{}, 1),
	}
	s.registry = NewRegistry(sessionObserver{s})
	return s
}

// NewInMemoryService creates a session over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Registry exposes the session's aggregate root.
func (s *Service) Registry() *Registry { return s.registry }

// Store returns the persistence collaborator.
func (s *Service) Store() domain.Store { return s.store }

// ProjectID returns the project loaded into the session.
func (s *Service) ProjectID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// Tracks returns the current collection.
func (s *Service) Tracks() []Track { return s.registry.List() }

// Changed signals when new edits were queued. The channel has a buffer of one.
func (s *Service) Changed() <-chan struct{} { return s.notify }

type sessionObserver struct{ s *Service }

func (o sessionObserver) TracksChanged(before, after []Track) {
	changes := Diff(before, after)
	if len(changes) == 0 {
		return
	}
	o.s.outbox.Enqueue(changes...)
	o.s.reportPending()
	select {
	case o.s.notify <- struct{}{}:
	default:
	}
}

func (o sessionObserver) IDReassigned(kind domain.EntityType, from, to ID, _ bool) {
	o.s.outbox.Rekey(kind, from, to)
}

func (s *Service) reportPending() {
	if g, ok := s.metrics.(PendingGauge); ok {
		g.SetPending(s.outbox.Len())
	}
}

// Load replaces the session with the persisted state of a project and
// discards queued operations. Steps violating the section invariants are
// skipped with a warning.
func (s *Service) Load(ctx context.Context, projectID ID) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	tracks, err := s.loadTracks(ctx, projectID)
	if err != nil {
		return err
	}
	if res := s.engine.Evaluate(tracks); len(res.Violations) > 0 {
		for _, v := range res.Violations {
			s.logger.Warn("loaded arrangement violates rule", "rule", v.Rule, "entity", string(v.Entity), "id", v.EntityID.String(), "message", v.Message)
		}
	}
	s.outbox.Reset()
	s.registry.Reset(tracks)
	s.mu.Lock()
	s.projectID = projectID
	s.lastErr = nil
	s.lastSync = s.clock.Now()
	s.mu.Unlock()
	s.reportPending()
	s.logger.Info("project loaded", "project", projectID.String(), "tracks", len(tracks))
	return nil
}

func (s *Service) loadTracks(ctx context.Context, projectID ID) ([]Track, error) {
	records, err := s.store.List(ctx, domain.EntityTrack, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	tracks := make([]Track, 0, len(records))
	for _, rec := range records {
		track, ok := rec.(Track)
		if !ok {
			return nil, fmt.Errorf("list tracks: unexpected %T", rec)
		}
		sectionRecords, err := s.store.List(ctx, domain.EntitySection, track.ID)
		if err != nil {
			return nil, fmt.Errorf("list sections of %s: %w", track.ID, err)
		}
		track.Sections = nil
		for _, srec := range sectionRecords {
			section, ok := srec.(Section)
			if !ok {
				return nil, fmt.Errorf("list sections: unexpected %T", srec)
			}
			stepRecords, err := s.store.List(ctx, domain.EntityStep, section.ID)
			if err != nil {
				return nil, fmt.Errorf("list steps of %s: %w", section.ID, err)
			}
			section.Steps = nil
			for _, strec := range stepRecords {
				step, ok := strec.(Step)
				if !ok {
					return nil, fmt.Errorf("list steps: unexpected %T", strec)
				}
				if !section.InRange(step.Index) {
					s.logger.Warn("skipping step outside section", "step", step.ID.String(), "index", step.Index, "step_count", section.StepCount)
					continue
				}
				next, err := InsertStep(section.Steps, step)
				if err != nil {
					s.logger.Warn("skipping duplicate step", "step", step.ID.String(), "error", err)
					continue
				}
				section.Steps = next
			}
			track.Sections = append(track.Sections, section)
		}
		track.Sections = SortSections(track.Sections)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Import adds tracks as new local entities with fresh temporary ids. The
// arrangement is checked against the rules engine first.
func (s *Service) Import(tracks []Track) ([]Track, error) {
	projectID := s.ProjectID()
	fresh := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		t.ID = ""
		t.ProjectID = projectID
		sections := make([]Section, len(t.Sections))
		for i, sec := range t.Sections {
			sec.ID = ""
			steps := make([]Step, len(sec.Steps))
			for j, st := range sec.Steps {
				st.ID = ""
				steps[j] = st
			}
			sec.Steps = steps
			sections[i] = sec
		}
		t.Sections = sections
		fresh = append(fresh, BindTrack(t))
	}
	if _, err := s.engine.Check(fresh); err != nil {
		return nil, err
	}
	out := make([]Track, 0, len(fresh))
	for _, t := range fresh {
		out = append(out, s.registry.Add(t))
	}
	return out, nil
}

// Validate evaluates the rules engine against the current collection.
func (s *Service) Validate() Result { return s.engine.Evaluate(s.registry.List()) }

// AddTrack appends an empty track owned by the loaded project.
func (s *Service) AddTrack(name string) Track {
	t := NewTrack(name)
	t.ProjectID = s.ProjectID()
	return s.registry.Add(t)
}

// RemoveTrack deletes a track and everything it owns.
func (s *Service) RemoveTrack(id ID) bool { return s.registry.RemoveByID(id) }

// DeleteProject removes every track of a project together with its sections
// and steps and reports how many tracks were removed. The loaded project is
// emptied through the registry and synced, so the removal reaches the store as
// queued deletes. Other projects are deleted in the store directly.
func (s *Service) DeleteProject(ctx context.Context, projectID ID) (int, error) {
	if projectID == s.ProjectID() {
		removed := 0
		for _, t := range s.registry.List() {
			if s.registry.RemoveByID(t.ID) {
				removed++
			}
		}
		if err := s.Sync(ctx); err != nil {
			return removed, fmt.Errorf("delete project %s: %w", projectID, err)
		}
		s.logger.Info("project deleted", "project", projectID.String(), "tracks", removed)
		return removed, nil
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	records, err := s.store.List(ctx, domain.EntityTrack, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete project %s: list tracks: %w", projectID, err)
	}
	for i, rec := range records {
		if err := s.store.Delete(ctx, domain.EntityTrack, rec.EntityID()); err != nil {
			return i, fmt.Errorf("delete project %s: track %s: %w", projectID, rec.EntityID(), err)
		}
	}
	s.logger.Info("project deleted", "project", projectID.String(), "tracks", len(records))
	return len(records), nil
}

// RenameTrack changes a track's name.
func (s *Service) RenameTrack(id ID, name string) error {
	_, err := s.registry.UpdateByID(id, func(t Track) Track {
		t.Name = name
		return t
	})
	return err
}

// SetMute sets a track's mute flag.
func (s *Service) SetMute(id ID, mute bool) error {
	_, err := s.registry.UpdateByID(id, func(t Track) Track {
		t.Mute = mute
		return t
	})
	return err
}

// SetSolo sets a track's solo flag.
func (s *Service) SetSolo(id ID, solo bool) error {
	_, err := s.registry.UpdateByID(id, func(t Track) Track {
		t.Solo = solo
		return t
	})
	return err
}

// AddSection inserts a new section with stepCount steps at index at; a
// negative at appends.
func (s *Service) AddSection(trackID ID, stepCount, at int) (Section, error) {
	return s.registry.AddSection(trackID, NewSection(stepCount), at)
}

// RemoveSection deletes a section and its steps.
func (s *Service) RemoveSection(trackID, sectionID ID) (bool, error) {
	return s.registry.RemoveSection(trackID, sectionID)
}

// ReorderSection moves a section to a new position.
func (s *Service) ReorderSection(trackID, sectionID ID, position int) error {
	return s.registry.ReorderSection(trackID, sectionID, position)
}

// ResizeSection changes a section's step count.
func (s *Service) ResizeSection(trackID, sectionID ID, stepCount int) error {
	return s.registry.ResizeSection(trackID, sectionID, stepCount)
}

// ToggleStep flips a grid cell. Toggling in a section that no longer exists is
// treated as already pruned and reports false without error.
func (s *Service) ToggleStep(trackID, sectionID ID, index int, trigger Trigger, fileID ID) (bool, error) {
	selected, err := s.registry.ToggleStep(trackID, sectionID, index, trigger, fileID)
	if errors.Is(err, domain.ErrOrphanedStep) {
		s.logger.Debug("toggle on missing section ignored", "section", sectionID.String())
		return false, nil
	}
	return selected, err
}

// Status returns the current sync state.
func (s *Service) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncStatus{Pending: s.outbox.Len(), LastError: s.lastErr, LastSyncedAt: s.lastSync}
}

// Sync applies queued operations in order until the outbox is empty or an
// operation fails. A failed operation stays queued and the local state is
// kept.
func (s *Service) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		op, ok := s.outbox.Begin()
		if !ok {
			break
		}
		if err := s.dispatch(ctx, op); err != nil {
			s.outbox.Fail(op.Seq)
			s.reportPending()
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			s.logger.Warn("sync failed", "operation", operationName(op), "id", op.Key.ID.String(), "error", err)
			return err
		}
		s.outbox.Complete(op.Seq)
		applied++
	}
	s.reportPending()
	s.mu.Lock()
	s.lastErr = nil
	s.lastSync = s.clock.Now()
	s.mu.Unlock()
	if applied > 0 {
		s.logger.Debug("sync complete", "applied", applied)
	}
	return nil
}

func operationName(op outbox.Op) string {
	return string(op.Action) + "_" + string(op.Key.Entity)
}

func (s *Service) dispatch(ctx context.Context, op outbox.Op) (err error) {
	name := operationName(op)
	ctx, span := s.tracer.Start(ctx, name)
	start := time.Now()
	defer func() {
		s.metrics.Observe(ctx, name, err == nil, time.Since(start))
		span.End(err)
	}()

	switch op.Action {
	case domain.ActionCreate:
		if parent := op.Entity.ParentID(); parent.IsTemporary() {
			return fmt.Errorf("%s %s: %w", name, op.Key.ID, ErrSyncBlocked)
		}
		id, err := s.store.Create(ctx, op.Entity)
		if err != nil {
			return fmt.Errorf("%s %s: %w", name, op.Key.ID, err)
		}
		if !s.registry.ReassignID(op.Key.Entity, op.Key.ID, id) {
			s.resolveConflict(op, id)
		}
		s.logger.Debug("entity persisted", "entity", string(op.Key.Entity), "temporary_id", op.Key.ID.String(), "id", id.String())
		return nil
	case domain.ActionUpdate:
		if op.Key.ID.IsTemporary() {
			s.logger.Debug("dropping update of unpersisted entity", "entity", string(op.Key.Entity), "id", op.Key.ID.String())
			return nil
		}
		if err := s.store.Update(ctx, op.Entity); err != nil {
			return fmt.Errorf("%s %s: %w", name, op.Key.ID, err)
		}
		return nil
	case domain.ActionDelete:
		if op.Key.ID.IsTemporary() {
			return nil
		}
		if err := s.store.Delete(ctx, op.Key.Entity, op.Key.ID); err != nil {
			return fmt.Errorf("%s %s: %w", name, op.Key.ID, err)
		}
		return nil
	}
	return fmt.Errorf("unknown outbox action %q", op.Action)
}

// resolveConflict handles a create that resolved after the entity was removed
// locally: the persisted id is discarded with a best-effort delete.
func (s *Service) resolveConflict(op outbox.Op, persisted ID) {
	conflict := domain.ReconciliationConflict{Entity: op.Key.Entity, TemporaryID: op.Key.ID, PersistedID: persisted}
	s.logger.Info("reconciliation conflict", "error", conflict)
	key := outbox.Key{Entity: op.Key.Entity, ID: persisted}
	if s.outbox.Has(key, domain.ActionDelete) {
		return
	}
	s.outbox.Enqueue(domain.Change{
		Entity: op.Key.Entity,
		Action: domain.ActionDelete,
		Before: op.Entity.Rebind(persisted, op.Entity.ParentID()),
	})
}

// Run syncs whenever edits are queued and every sync interval until ctx is
// cancelled. Failed syncs are retried with exponential backoff.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	backoff := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
		case <-ticker.C:
		}
		if err := s.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, s.interval, s.maxBackoff)
			s.logger.Error("sync retry scheduled", "backoff", backoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			select {
			case s.notify <- struct{}{}:
			default:
			}
			continue
		}
		backoff = 0
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}
