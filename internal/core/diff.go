package core

import (
	"stepseq/pkg/domain"
)

type entityKey struct {
	kind domain.EntityType
	id   ID
}

func flattenRecords(tracks []Track) ([]domain.Entity, map[entityKey]domain.Entity) {
	var order []domain.Entity
	byKey := make(map[entityKey]domain.Entity)
	add := func(e domain.Entity) {
		order = append(order, e)
		byKey[entityKey{kind: e.EntityType(), id: e.EntityID()}] = e
	}
	for _, t := range tracks {
		add(t.Record())
		for _, s := range t.Sections {
			add(s.Record())
			for _, st := range s.Steps {
				add(st)
			}
		}
	}
	return order, byKey
}

func sameRecord(a, b domain.Entity) bool {
	switch x := a.(type) {
	case Track:
		y, ok := b.(Track)
		return ok && x.SameRecord(y)
	case Section:
		y, ok := b.(Section)
		return ok && x.SameRecord(y)
	case Step:
		y, ok := b.(Step)
		return ok && x == y
	}
	return false
}

// Diff returns the record-level changes turning before into after. Creates
// and updates come first in parent-before-child order, followed by deletes
// with children before their parents.
func Diff(before, after []Track) []domain.Change {
	beforeOrder, beforeByKey := flattenRecords(before)
	afterOrder, afterByKey := flattenRecords(after)

	var changes []domain.Change
	for _, e := range afterOrder {
		key := entityKey{kind: e.EntityType(), id: e.EntityID()}
		prev, ok := beforeByKey[key]
		switch {
		case !ok:
			changes = append(changes, domain.Change{Entity: key.kind, Action: domain.ActionCreate, After: e})
		case !sameRecord(prev, e):
			changes = append(changes, domain.Change{Entity: key.kind, Action: domain.ActionUpdate, Before: prev, After: e})
		}
	}
	for i := len(beforeOrder) - 1; i >= 0; i-- {
		e := beforeOrder[i]
		key := entityKey{kind: e.EntityType(), id: e.EntityID()}
		if _, ok := afterByKey[key]; !ok {
			changes = append(changes, domain.Change{Entity: key.kind, Action: domain.ActionDelete, Before: e})
		}
	}
	return changes
}
