// Package grid projects step collections into row/column matrices for
// rendering and maps clicks on those matrices back to toggle requests.
//
// Rows are trigger discriminators (pitches for the piano roll, sample files
// for the sample grid); columns are step indexes. All functions are pure.
package grid

import (
	"stepseq/internal/core"
	"stepseq/pkg/domain"
)

// Window selects the rows and columns to render.
type Window struct {
	VisibleOffset int
	RowCount      int
	ColumnOffset  int
	ColumnCount   int
}

// Row is one rendered discriminator.
type Row struct {
	Key   domain.Trigger
	Label string
	Cells []Cell
}

// Cell is a single grid position. The First/Last flags only drive border
// rendering.
type Cell struct {
	Index       int
	Selected    bool
	Playing     bool
	FirstRow    bool
	LastRow     bool
	FirstColumn bool
	LastColumn  bool
}

// Matrix is the projected grid.
type Matrix struct {
	Rows    []Row
	Columns []int
}

// ToggleRequest is the step operation a click resolves to.
type ToggleRequest struct {
	Index   int
	Trigger domain.Trigger
}

// WindowSlice returns up to count rows starting at offset. Negative offsets
// clamp to zero; a window running past the end yields a shorter result.
func WindowSlice[T any](rows []T, offset, count int) []T {
	if offset < 0 {
		offset = 0
	}
	if count <= 0 || offset >= len(rows) {
		return nil
	}
	if count > len(rows)-offset {
		count = len(rows) - offset
	}
	return rows[offset : offset+count]
}

// NoteRows lists note triggers from high down to low, keyboard order.
func NoteRows(high, low domain.Pitch) []domain.Trigger {
	if high < low {
		high, low = low, high
	}
	rows := make([]domain.Trigger, 0, int(high-low)+1)
	for p := int(high); p >= int(low); p-- {
		rows = append(rows, domain.NoteTrigger(domain.Pitch(p)))
	}
	return rows
}

// SampleRows lists sample triggers in the given order.
func SampleRows(fileIDs []domain.ID) []domain.Trigger {
	rows := make([]domain.Trigger, len(fileIDs))
	for i, id := range fileIDs {
		rows[i] = domain.SampleTrigger(id)
	}
	return rows
}

// Project renders the window over steps. playing is the transport position
// within the same index space, or nil when stopped.
func Project(steps []domain.Step, w Window, rows []domain.Trigger, playing *int) Matrix {
	visible := WindowSlice(rows, w.VisibleOffset, w.RowCount)
	colStart := w.ColumnOffset
	if colStart < 0 {
		colStart = 0
	}
	columns := make([]int, 0, max(w.ColumnCount, 0))
	for c := 0; c < w.ColumnCount; c++ {
		columns = append(columns, colStart+c)
	}
	idx := core.IndexSteps(steps)
	m := Matrix{Columns: columns, Rows: make([]Row, len(visible))}
	for r, key := range visible {
		cells := make([]Cell, len(columns))
		for c, index := range columns {
			cells[c] = Cell{
				Index:       index,
				Selected:    idx.Has(index, key),
				Playing:     playing != nil && *playing == index,
				FirstRow:    r == 0,
				LastRow:     r == len(visible)-1,
				FirstColumn: c == 0,
				LastColumn:  c == len(columns)-1,
			}
		}
		m.Rows[r] = Row{Key: key, Label: key.String(), Cells: cells}
	}
	return m
}

// InverseClick maps a clicked cell to the toggle it requests.
func InverseClick(rowKey domain.Trigger, column int) ToggleRequest {
	return ToggleRequest{Index: column, Trigger: rowKey}
}

// Locate resolves matrix coordinates to a toggle request.
func (m Matrix) Locate(row, col int) (ToggleRequest, bool) {
	if row < 0 || row >= len(m.Rows) || col < 0 || col >= len(m.Columns) {
		return ToggleRequest{}, false
	}
	return InverseClick(m.Rows[row].Key, m.Columns[col]), true
}

// Selected counts selected cells.
func (m Matrix) Selected() int {
	n := 0
	for _, r := range m.Rows {
		for _, c := range r.Cells {
			if c.Selected {
				n++
			}
		}
	}
	return n
}

// SectionWindow returns a window covering every step of section.
func SectionWindow(section domain.Section, visibleOffset, rowCount int) Window {
	return Window{VisibleOffset: visibleOffset, RowCount: rowCount, ColumnCount: section.StepCount}
}
