package outbox

import (
	"testing"

	"stepseq/pkg/domain"
)

func step(id, section domain.ID, index int) domain.Step {
	return domain.Step{ID: id, SectionID: section, Index: index, Trigger: domain.NoteTrigger(60)}
}

func create(e domain.Entity) domain.Change {
	return domain.Change{Entity: e.EntityType(), Action: domain.ActionCreate, After: e}
}

func update(e domain.Entity) domain.Change {
	return domain.Change{Entity: e.EntityType(), Action: domain.ActionUpdate, After: e}
}

func del(e domain.Entity) domain.Change {
	return domain.Change{Entity: e.EntityType(), Action: domain.ActionDelete, Before: e}
}

func TestFoldTable(t *testing.T) {
	a := step("temp-a", "s1", 1)
	aLater := step("temp-a", "s1", 2)
	p := step("p1", "s1", 1)
	pLater := step("p1", "s1", 3)

	cases := []struct {
		name    string
		changes []domain.Change
		want    []domain.Action
		index   int
	}{
		{"create+update", []domain.Change{create(a), update(aLater)}, []domain.Action{domain.ActionCreate}, 2},
		{"create+delete", []domain.Change{create(a), del(aLater)}, nil, 0},
		{"update+update", []domain.Change{update(p), update(pLater)}, []domain.Action{domain.ActionUpdate}, 3},
		{"update+delete", []domain.Change{update(p), del(pLater)}, []domain.Action{domain.ActionDelete}, 3},
	}
	for _, c := range cases {
		o := New()
		o.Enqueue(c.changes...)
		ops := o.Pending()
		if len(ops) != len(c.want) {
			t.Fatalf("%s: expected %d ops, got %+v", c.name, len(c.want), ops)
		}
		for i, op := range ops {
			if op.Action != c.want[i] {
				t.Fatalf("%s: op %d action %s want %s", c.name, i, op.Action, c.want[i])
			}
			if got := op.Entity.(domain.Step).Index; got != c.index {
				t.Fatalf("%s: op carries index %d want %d", c.name, got, c.index)
			}
		}
	}
}

func TestCreateKeepsPositionWhenUpdated(t *testing.T) {
	o := New()
	o.Enqueue(create(step("temp-a", "s", 0)), create(step("temp-b", "s", 1)), update(step("temp-a", "s", 5)))
	ops := o.Pending()
	if len(ops) != 2 || ops[0].Key.ID != "temp-a" || ops[1].Key.ID != "temp-b" {
		t.Fatalf("unexpected order %+v", ops)
	}
	if ops[0].Seq >= ops[1].Seq {
		t.Fatalf("folded create must keep its sequence: %d %d", ops[0].Seq, ops[1].Seq)
	}
}

func TestUpdateMovesToTail(t *testing.T) {
	o := New()
	o.Enqueue(update(step("p1", "s", 0)), update(step("p2", "s", 1)), update(step("p1", "s", 2)))
	ops := o.Pending()
	if len(ops) != 2 || ops[0].Key.ID != "p2" || ops[1].Key.ID != "p1" {
		t.Fatalf("latest update must be dispatched last: %+v", ops)
	}
}

func TestBeginIsExclusive(t *testing.T) {
	o := New()
	o.Enqueue(create(step("temp-a", "s", 0)), create(step("temp-b", "s", 1)))
	op, ok := o.Begin()
	if !ok || op.Key.ID != "temp-a" {
		t.Fatalf("expected head op, got %+v %v", op, ok)
	}
	if _, ok := o.Begin(); ok {
		t.Fatalf("second Begin must wait for the in-flight op")
	}
	if o.Len() != 2 {
		t.Fatalf("Len counts the in-flight op, got %d", o.Len())
	}
	if o.Complete(op.Seq + 100) {
		t.Fatalf("complete with a foreign seq must be ignored")
	}
	if !o.Complete(op.Seq) {
		t.Fatalf("complete failed")
	}
	next, ok := o.Begin()
	if !ok || next.Key.ID != "temp-b" {
		t.Fatalf("expected second op, got %+v", next)
	}
}

func TestBeginDoesNotCopyTheQueue(t *testing.T) {
	o := New()
	for i := 0; i < 1000; i++ {
		o.Enqueue(create(step(domain.NewTemporaryID(), "s", i)))
	}
	head := &o.pending[1]
	op, ok := o.Begin()
	if !ok || !o.Complete(op.Seq) {
		t.Fatalf("begin failed")
	}
	if &o.pending[0] != head {
		t.Fatalf("Begin must reslice the queue, not reallocate it")
	}
	seen := 1
	for {
		op, ok := o.Begin()
		if !ok {
			break
		}
		if op.Entity.(domain.Step).Index != seen {
			t.Fatalf("out of order: got index %d, want %d", op.Entity.(domain.Step).Index, seen)
		}
		o.Complete(op.Seq)
		seen++
	}
	if seen != 1000 || o.Len() != 0 {
		t.Fatalf("drained %d, left %d", seen, o.Len())
	}
}

func TestRemoveKeepsOrder(t *testing.T) {
	o := New()
	o.Enqueue(create(step("temp-a", "s", 0)), create(step("temp-b", "s", 1)), create(step("temp-c", "s", 2)))
	o.Enqueue(domain.Change{Entity: domain.EntityStep, Action: domain.ActionDelete, Before: step("temp-b", "s", 1)})
	pending := o.Pending()
	if len(pending) != 2 || pending[0].Key.ID != "temp-a" || pending[1].Key.ID != "temp-c" {
		t.Fatalf("unexpected queue %+v", pending)
	}
}

func TestFailFoldsWithNewerEdits(t *testing.T) {
	o := New()
	o.Enqueue(create(step("temp-a", "s", 0)))
	op, _ := o.Begin()
	o.Enqueue(create(step("temp-b", "s", 1)), update(step("temp-a", "s", 7)))
	o.Fail(op.Seq)
	ops := o.Pending()
	if len(ops) != 2 || ops[0].Key.ID != "temp-a" || ops[0].Action != domain.ActionCreate {
		t.Fatalf("failed create must return to the head: %+v", ops)
	}
	if ops[0].Entity.(domain.Step).Index != 7 {
		t.Fatalf("failed create must carry the newest record, got %+v", ops[0].Entity)
	}

	o = New()
	o.Enqueue(create(step("temp-a", "s", 0)))
	op, _ = o.Begin()
	o.Enqueue(del(step("temp-a", "s", 0)))
	o.Fail(op.Seq)
	if o.Len() != 0 {
		t.Fatalf("failed create deleted meanwhile must vanish, got %+v", o.Pending())
	}

	o = New()
	o.Enqueue(update(step("p", "s", 0)))
	op, _ = o.Begin()
	o.Enqueue(update(step("p", "s", 4)))
	o.Fail(op.Seq)
	ops = o.Pending()
	if len(ops) != 1 || ops[0].Entity.(domain.Step).Index != 4 {
		t.Fatalf("stale update must be superseded: %+v", ops)
	}
}

func TestRekeyRewritesKeysAndParents(t *testing.T) {
	o := New()
	section := domain.Section{ID: "temp-s", TrackID: "t", StepCount: 8}
	o.Enqueue(create(section), create(step("temp-a", "temp-s", 0)))
	op, _ := o.Begin()
	o.Enqueue(update(domain.Section{ID: "temp-s", TrackID: "t", StepCount: 4}), del(section))
	if n := o.Rekey(domain.EntitySection, "temp-s", "p-s"); n != 2 {
		t.Fatalf("expected two rekeyed ops, got %d", n)
	}
	o.Complete(op.Seq)
	if !o.Has(Key{Entity: domain.EntitySection, ID: "p-s"}, domain.ActionDelete) {
		t.Fatalf("delete of the temporary id must now target the persisted id: %+v", o.Pending())
	}
	for _, op := range o.Pending() {
		if op.Key.Entity == domain.EntityStep && op.Entity.ParentID() != "p-s" {
			t.Fatalf("child op still references the temporary parent: %+v", op)
		}
	}
}

func TestResetDiscardsInFlight(t *testing.T) {
	o := New()
	o.Enqueue(create(step("temp-a", "s", 0)))
	op, _ := o.Begin()
	o.Reset()
	if o.Fail(op.Seq) || o.Len() != 0 {
		t.Fatalf("reset outbox must ignore the abandoned op")
	}
}
