// Package outbox queues persistence operations produced by local edits and
// hands them out one at a time in edit order.
//
// Pending operations for the same entity are folded as they arrive so the
// store only ever sees the last known local state:
//
//	create + update -> create carrying the latest record
//	create + delete -> nothing
//	update + update -> the later update
//	update + delete -> delete
//
// At most one operation is in flight. A failed operation returns to the head
// of the queue and is folded with anything enqueued for its entity meanwhile.
package outbox

import (
	"sync"

	"stepseq/pkg/domain"
)

// Key identifies the entity an operation applies to.
type Key struct {
	Entity domain.EntityType
	ID     domain.ID
}

// Op is a queued persistence operation. Seq is the edit sequence number that
// produced it; later edits always carry larger numbers.
type Op struct {
	Seq    uint64
	Action domain.Action
	Key    Key
	Entity domain.Entity
}

// Outbox is safe for concurrent use.
type Outbox struct {
	mu       sync.Mutex
	seq      uint64
	pending  []Op
	inflight *Op
}

// New returns an empty outbox.
func New() *Outbox {
	return &Outbox{}
}

// Enqueue records changes in order, folding each into any pending operation
// for the same entity. It returns the sequence number of the last change.
func (o *Outbox) Enqueue(changes ...domain.Change) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range changes {
		target := c.Target()
		if target == nil {
			continue
		}
		o.seq++
		o.push(Op{
			Seq:    o.seq,
			Action: c.Action,
			Key:    Key{Entity: target.EntityType(), ID: target.EntityID()},
			Entity: target,
		})
	}
	return o.seq
}

type outcome int

const (
	appendNewer outcome = iota
	mergeIntoOlder
	dropBoth
)

func fold(older, newer Op) outcome {
	switch {
	case older.Action == domain.ActionCreate && newer.Action == domain.ActionUpdate:
		return mergeIntoOlder
	case older.Action == domain.ActionCreate && newer.Action == domain.ActionDelete:
		return dropBoth
	}
	return appendNewer
}

func (o *Outbox) indexOf(key Key) int {
	for i, op := range o.pending {
		if op.Key == key {
			return i
		}
	}
	return -1
}

func (o *Outbox) push(op Op) {
	i := o.indexOf(op.Key)
	if i < 0 {
		o.pending = append(o.pending, op)
		return
	}
	switch fold(o.pending[i], op) {
	case mergeIntoOlder:
		o.pending[i].Entity = op.Entity
	case dropBoth:
		o.remove(i)
	default:
		o.remove(i)
		o.pending = append(o.pending, op)
	}
}

// remove deletes pending[i] in place. The queue's backing array is never
// shared outside the outbox.
func (o *Outbox) remove(i int) {
	n := copy(o.pending[i:], o.pending[i+1:])
	o.pending[i+n] = Op{}
	o.pending = o.pending[:i+n]
}

// Begin marks the head operation as in flight. It reports false when the
// queue is empty or another operation is in flight.
func (o *Outbox) Begin() (Op, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight != nil || len(o.pending) == 0 {
		return Op{}, false
	}
	op := o.pending[0]
	o.pending[0] = Op{}
	o.pending = o.pending[1:]
	if len(o.pending) == 0 {
		o.pending = nil
	}
	o.inflight = &op
	return op, true
}

// InFlight returns the operation currently being applied.
func (o *Outbox) InFlight() (Op, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		return Op{}, false
	}
	return *o.inflight, true
}

// Complete acknowledges the in-flight operation.
func (o *Outbox) Complete(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil || o.inflight.Seq != seq {
		return false
	}
	o.inflight = nil
	return true
}

// Fail returns the in-flight operation to the head of the queue.
func (o *Outbox) Fail(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil || o.inflight.Seq != seq {
		return false
	}
	op := *o.inflight
	o.inflight = nil
	i := o.indexOf(op.Key)
	if i < 0 {
		o.pending = append([]Op{op}, o.pending...)
		return true
	}
	switch fold(op, o.pending[i]) {
	case mergeIntoOlder:
		op.Entity = o.pending[i].Entity
		o.remove(i)
		o.pending = append([]Op{op}, o.pending...)
	case dropBoth:
		o.remove(i)
	}
	return true
}

func parentKind(kind domain.EntityType) domain.EntityType {
	switch kind {
	case domain.EntitySection:
		return domain.EntityTrack
	case domain.EntityStep:
		return domain.EntitySection
	}
	return ""
}

// Rekey rewrites pending operations after a temporary id was replaced: their
// own key and, for children, the parent reference they carry. It returns the
// number of operations touched.
func (o *Outbox) Rekey(kind domain.EntityType, from, to domain.ID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for i := range o.pending {
		op := &o.pending[i]
		switch {
		case op.Key.Entity == kind && op.Key.ID == from:
			op.Key.ID = to
			op.Entity = op.Entity.Rebind(to, op.Entity.ParentID())
			n++
		case parentKind(op.Key.Entity) == kind && op.Entity.ParentID() == from:
			op.Entity = op.Entity.Rebind(op.Entity.EntityID(), to)
			n++
		}
	}
	return n
}

// Has reports whether an operation with the action is pending for key.
func (o *Outbox) Has(key Key, action domain.Action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.indexOf(key)
	return i >= 0 && o.pending[i].Action == action
}

// Pending returns a copy of the queued operations in dispatch order.
func (o *Outbox) Pending() []Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Op, len(o.pending))
	copy(out, o.pending)
	return out
}

// Len counts queued operations including the one in flight.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.pending)
	if o.inflight != nil {
		n++
	}
	return n
}

// Reset drops every queued operation including the one in flight. A later
// Complete or Fail for it is ignored.
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = nil
	o.inflight = nil
}
