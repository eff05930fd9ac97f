package core

import (
	"errors"
	"testing"

	"stepseq/pkg/domain"
)

func indexes(sections []Section) []int {
	out := make([]int, len(sections))
	for i, s := range sections {
		out[i] = s.Index
	}
	return out
}

func ids(sections []Section) []ID {
	out := make([]ID, len(sections))
	for i, s := range sections {
		out[i] = s.ID
	}
	return out
}

func TestInsertSectionCollisionAppends(t *testing.T) {
	sections := []Section{{ID: "a", Index: 0, StepCount: 4}, {ID: "b", Index: 3, StepCount: 4}}
	out := InsertSection(sections, Section{ID: "c", StepCount: 4}, 3)
	if got := ids(out); got[2] != "c" || out[2].Index != 4 {
		t.Fatalf("colliding insert must append at max+1: %v %v", got, indexes(out))
	}
	out = InsertSection(sections, Section{ID: "d", StepCount: 4}, 1)
	if got := ids(out); got[1] != "d" || out[1].Index != 1 {
		t.Fatalf("free position must be kept in order: %v %v", got, indexes(out))
	}
	out = InsertSection(nil, Section{ID: "e", StepCount: 4}, -1)
	if out[0].Index != 0 {
		t.Fatalf("negative position appends: %v", indexes(out))
	}
	if len(sections) != 2 || sections[1].ID != "b" {
		t.Fatalf("input mutated")
	}
}

func TestReorderMovesAndReindexes(t *testing.T) {
	sections := []Section{{ID: "a", Index: 0, StepCount: 8}, {ID: "b", Index: 5, StepCount: 4}, {ID: "c", Index: 9, StepCount: 2}}
	out, err := ReorderSection(sections, "c", 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := ids(out); got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected order %v", got)
	}
	for i, idx := range indexes(out) {
		if idx != i {
			t.Fatalf("indexes must be dense, got %v", indexes(out))
		}
	}
	out, _ = ReorderSection(sections, "a", 99)
	if got := ids(out); got[2] != "a" {
		t.Fatalf("position must clamp to the end: %v", got)
	}
	if _, err := ReorderSection(sections, "zz", 0); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}

func TestReorderScenarioOffsets(t *testing.T) {
	a := Section{ID: "A", Index: 0, StepCount: 8, Steps: []Step{{ID: "a1", SectionID: "A", Index: 1, Trigger: c4}}}
	b := Section{ID: "B", Index: 1, StepCount: 4, Steps: []Step{{ID: "b0", SectionID: "B", Index: 0, Trigger: e4}}}
	before := AbsoluteOffsets([]Section{a, b})
	if before["A"] != 0 || before["B"] != 8 {
		t.Fatalf("unexpected offsets %v", before)
	}
	out, err := ReorderSection([]Section{a, b}, "B", 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := ids(out); got[0] != "B" || got[1] != "A" {
		t.Fatalf("expected [B, A], got %v", got)
	}
	after := AbsoluteOffsets(out)
	if after["B"] != 0 || after["A"] != 4 {
		t.Fatalf("offsets not recomputed: %v", after)
	}
	flat := FlattenTriggers(Track{Sections: out})
	if len(flat) != 2 || flat[0].Step != 0 || flat[0].SectionID != "B" || flat[1].Step != 5 {
		t.Fatalf("B's steps must occupy the earlier range: %+v", flat)
	}
}

func TestResizeScenario(t *testing.T) {
	section := Section{ID: "s", Index: 0, StepCount: 8, Steps: []Step{
		{ID: "keep", SectionID: "s", Index: 2, Trigger: c4},
		{ID: "drop", SectionID: "s", Index: 7, Trigger: c4},
	}}
	out, err := ResizeSection([]Section{section}, "s", 4)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if out[0].StepCount != 4 || len(out[0].Steps) != 1 || out[0].Steps[0].ID != "keep" {
		t.Fatalf("unexpected resize result %+v", out[0])
	}
	for _, st := range out[0].Steps {
		if st.Index >= out[0].StepCount {
			t.Fatalf("step %s outside resized domain", st.ID)
		}
	}
	if section.StepCount != 8 || len(section.Steps) != 2 {
		t.Fatalf("input mutated")
	}
}

func TestResizeRejectsNonPositive(t *testing.T) {
	sections := []Section{{ID: "s", StepCount: 8}}
	for _, n := range []int{0, -3} {
		out, err := ResizeSection(sections, "s", n)
		if !errors.Is(err, domain.ErrInvalidStepCount) {
			t.Fatalf("resize(%d) error = %v", n, err)
		}
		if out[0].StepCount != 8 {
			t.Fatalf("rejected resize changed state")
		}
	}
}

func TestRemoveSectionAndTotals(t *testing.T) {
	sections := []Section{{ID: "a", Index: 0, StepCount: 8}, {ID: "b", Index: 1, StepCount: 4}}
	if TotalSteps(sections) != 12 {
		t.Fatalf("total steps = %d", TotalSteps(sections))
	}
	out := RemoveSection(sections, "a")
	if len(out) != 1 || out[0].ID != "b" || out[0].Index != 1 {
		t.Fatalf("unexpected remove result %+v", out)
	}
	if same := RemoveSection(sections, "zz"); len(same) != 2 {
		t.Fatalf("removing unknown section must be a no-op")
	}
}

func TestAbsoluteOffsetsUseIndexOrder(t *testing.T) {
	offsets := AbsoluteOffsets([]Section{{ID: "late", Index: 10, StepCount: 4}, {ID: "early", Index: 2, StepCount: 16}})
	if offsets["early"] != 0 || offsets["late"] != 16 {
		t.Fatalf("offsets must follow index order, got %v", offsets)
	}
}
