package core

import (
	"fmt"
	"sort"

	"stepseq/pkg/domain"
)

// SortSections returns a copy of sections ordered by Index. Equal indexes keep
// their relative order.
func SortSections(sections []Section) []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func maxSectionIndex(sections []Section) int {
	if len(sections) == 0 {
		return -1
	}
	hi := sections[0].Index
	for _, s := range sections[1:] {
		if s.Index > hi {
			hi = s.Index
		}
	}
	return hi
}

func findSection(sections []Section, id ID) int {
	for i, s := range sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// InsertSection adds section at index at, keeping the result ordered by
// Index. A negative or already used at appends the section after the current
// maximum instead of overwriting a sibling.
func InsertSection(sections []Section, section Section, at int) []Section {
	pos := at
	if pos < 0 {
		pos = maxSectionIndex(sections) + 1
	}
	for _, s := range sections {
		if s.Index == pos {
			pos = maxSectionIndex(sections) + 1
			break
		}
	}
	section.Index = pos
	out := make([]Section, len(sections), len(sections)+1)
	copy(out, sections)
	return SortSections(append(out, section))
}

// ReorderSection moves the section to position newPos in the sorted order and
// reassigns dense indexes 0..n-1. Out-of-range positions are clamped.
func ReorderSection(sections []Section, id ID, newPos int) ([]Section, error) {
	ordered := SortSections(sections)
	from := findSection(ordered, id)
	if from < 0 {
		return sections, domain.ErrNotFound{Entity: domain.EntitySection, ID: id}
	}
	if newPos < 0 {
		newPos = 0
	}
	if newPos > len(ordered)-1 {
		newPos = len(ordered) - 1
	}
	moved := ordered[from]
	rest := make([]Section, 0, len(ordered)-1)
	rest = append(rest, ordered[:from]...)
	rest = append(rest, ordered[from+1:]...)
	out := make([]Section, 0, len(ordered))
	out = append(out, rest[:newPos]...)
	out = append(out, moved)
	out = append(out, rest[newPos:]...)
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

// ResizeSection sets the step count of a section and prunes its steps to the
// new domain. Non-positive counts fail with ErrInvalidStepCount and leave the
// input untouched.
func ResizeSection(sections []Section, id ID, stepCount int) ([]Section, error) {
	if stepCount <= 0 {
		return sections, fmt.Errorf("resize section %s to %d: %w", id, stepCount, domain.ErrInvalidStepCount)
	}
	i := findSection(sections, id)
	if i < 0 {
		return sections, domain.ErrNotFound{Entity: domain.EntitySection, ID: id}
	}
	out := make([]Section, len(sections))
	copy(out, sections)
	out[i].StepCount = stepCount
	out[i].Steps = PruneOutOfRange(out[i].Steps, stepCount)
	return out, nil
}

// RemoveSection drops the section and its steps. Remaining indexes are kept.
func RemoveSection(sections []Section, id ID) []Section {
	i := findSection(sections, id)
	if i < 0 {
		return sections
	}
	out := make([]Section, 0, len(sections)-1)
	out = append(out, sections[:i]...)
	return append(out, sections[i+1:]...)
}

// AbsoluteOffsets maps each section id to its first step in the flattened
// track timeline.
func AbsoluteOffsets(sections []Section) map[ID]int {
	offsets := make(map[ID]int, len(sections))
	start := 0
	for _, s := range SortSections(sections) {
		offsets[s.ID] = start
		start += s.StepCount
	}
	return offsets
}

// TotalSteps returns the length of the flattened timeline.
func TotalSteps(sections []Section) int {
	total := 0
	for _, s := range sections {
		total += s.StepCount
	}
	return total
}
