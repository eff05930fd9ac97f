// Package memory provides an in-memory domain.Store used by tests and
// ephemeral sessions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stepseq/pkg/domain"

	"github.com/google/uuid"
)

var _ domain.Store = (*Store)(nil)

type record struct {
	entity domain.Entity
	seq    uint64
}

// Store keeps records per entity type and enforces parent existence and
// cascading deletes like the relational stores.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	records map[domain.EntityType]map[domain.ID]record
	newID   func() domain.ID
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		records: map[domain.EntityType]map[domain.ID]record{
			domain.EntityTrack:   {},
			domain.EntitySection: {},
			domain.EntityStep:    {},
		},
		newID: func() domain.ID { return domain.ID(uuid.NewString()) },
	}
}

func parentKind(kind domain.EntityType) (domain.EntityType, bool) {
	switch kind {
	case domain.EntitySection:
		return domain.EntityTrack, true
	case domain.EntityStep:
		return domain.EntitySection, true
	}
	return "", false
}

func childKind(kind domain.EntityType) (domain.EntityType, bool) {
	switch kind {
	case domain.EntityTrack:
		return domain.EntitySection, true
	case domain.EntitySection:
		return domain.EntityStep, true
	}
	return "", false
}

func strip(e domain.Entity) domain.Entity {
	switch v := e.(type) {
	case domain.Track:
		return v.Record()
	case domain.Section:
		return v.Record()
	}
	return e
}

func (s *Store) bucket(kind domain.EntityType) (map[domain.ID]record, error) {
	b, ok := s.records[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", kind)
	}
	return b, nil
}

// Create stores the entity under a newly assigned id.
func (s *Store) Create(ctx context.Context, entity domain.Entity) (domain.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := entity.EntityType()
	b, err := s.bucket(kind)
	if err != nil {
		return "", err
	}
	if pk, ok := parentKind(kind); ok {
		if _, exists := s.records[pk][entity.ParentID()]; !exists {
			return "", domain.ErrNotFound{Entity: pk, ID: entity.ParentID()}
		}
	}
	id := s.newID()
	s.seq++
	b[id] = record{entity: strip(entity.Rebind(id, entity.ParentID())), seq: s.seq}
	return id, nil
}

// Update replaces the stored record.
func (s *Store) Update(ctx context.Context, entity domain.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := entity.EntityType()
	b, err := s.bucket(kind)
	if err != nil {
		return err
	}
	rec, ok := b[entity.EntityID()]
	if !ok {
		return domain.ErrNotFound{Entity: kind, ID: entity.EntityID()}
	}
	parent := rec.entity.ParentID()
	b[entity.EntityID()] = record{entity: strip(entity.Rebind(entity.EntityID(), parent)), seq: rec.seq}
	return nil
}

// Delete removes the record and its descendants. Missing records are ignored.
func (s *Store) Delete(ctx context.Context, kind domain.EntityType, id domain.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bucket(kind); err != nil {
		return err
	}
	s.cascade(kind, id)
	return nil
}

func (s *Store) cascade(kind domain.EntityType, id domain.ID) {
	if ck, ok := childKind(kind); ok {
		for childID, rec := range s.records[ck] {
			if rec.entity.ParentID() == id {
				s.cascade(ck, childID)
			}
		}
	}
	delete(s.records[kind], id)
}

// List returns the children of parentID in creation order; sections are
// ordered by index.
func (s *Store) List(ctx context.Context, kind domain.EntityType, parentID domain.ID) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.bucket(kind)
	if err != nil {
		return nil, err
	}
	var recs []record
	for _, rec := range b {
		if rec.entity.ParentID() == parentID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if kind == domain.EntitySection {
			a, b := recs[i].entity.(domain.Section), recs[j].entity.(domain.Section)
			if a.Index != b.Index {
				return a.Index < b.Index
			}
		}
		return recs[i].seq < recs[j].seq
	})
	out := make([]domain.Entity, len(recs))
	for i, rec := range recs {
		out[i] = rec.entity
	}
	return out, nil
}

// Count returns the number of stored records of a kind.
func (s *Store) Count(kind domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}
