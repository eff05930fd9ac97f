package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepseq/internal/core"
	"stepseq/internal/grid"
	"stepseq/pkg/domain"
)

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m
}

func cursorCell(m Model) grid.Cell {
	r, c := m.Cursor()
	return m.Matrix().Rows[r].Cells[c]
}

func TestNewStartsOnMiddleC(t *testing.T) {
	m := New(core.NewInMemoryService())
	r, c := m.Cursor()
	assert.Equal(t, 11, r, "cursor is kept on the last visible row")
	assert.Zero(t, c)
	assert.Empty(t, m.Matrix().Rows, "nothing to project without a section")
	assert.Contains(t, m.View(), "no tracks")
}

func TestToggleAtCursor(t *testing.T) {
	svc := core.NewInMemoryService()
	m := press(t, New(svc), "n", " ")

	require.Len(t, svc.Tracks(), 1)
	steps := svc.Tracks()[0].Sections[0].Steps
	require.Len(t, steps, 1)
	assert.Equal(t, domain.NoteTrigger(domain.MustPitch("C4")), steps[0].Trigger)
	assert.True(t, cursorCell(m).Selected)
	assert.Equal(t, 1, m.Matrix().Selected())

	m = press(t, m, " ")
	assert.False(t, cursorCell(m).Selected)
	assert.Empty(t, svc.Tracks()[0].Sections[0].Steps)
}

func TestCursorMovementClamps(t *testing.T) {
	m := press(t, New(core.NewInMemoryService()), "n")
	for i := 0; i < 20; i++ {
		m = press(t, m, "l")
	}
	_, c := m.Cursor()
	assert.Equal(t, DefaultStepCount-1, c)

	m = press(t, m, "down")
	r, _ := m.Cursor()
	assert.Equal(t, 11, r, "window scrolls with the cursor")
	assert.Equal(t, "B3", m.Matrix().Rows[r].Label)

	for i := 0; i < 100; i++ {
		m = press(t, m, "k")
	}
	r, _ = m.Cursor()
	assert.Zero(t, r)
	assert.Equal(t, "C6", m.Matrix().Rows[0].Label)
}

func TestSectionEditing(t *testing.T) {
	svc := core.NewInMemoryService()
	m := press(t, New(svc), "n", "a")
	require.Len(t, svc.Tracks()[0].Sections, 2)
	assert.Equal(t, 1, m.section)

	m = press(t, m, "tab")
	assert.Equal(t, 0, m.section)
	m = press(t, m, "shift+tab")
	assert.Equal(t, 1, m.section)

	m = press(t, m, "+")
	_, sec, _ := m.currentSection()
	assert.Equal(t, DefaultStepCount+1, sec.StepCount)
	m = press(t, m, "-", "-")
	_, sec, _ = m.currentSection()
	assert.Equal(t, DefaultStepCount-1, sec.StepCount)

	m = press(t, m, "x")
	assert.Len(t, svc.Tracks()[0].Sections, 1)
	assert.Equal(t, 0, m.section)
}

func TestResizePrunesAndClampsCursor(t *testing.T) {
	svc := core.NewInMemoryService()
	m := New(svc)
	m = press(t, m, "n")
	for i := 0; i < 15; i++ {
		m = press(t, m, "l")
	}
	m = press(t, m, " ", "-")
	_, c := m.Cursor()
	assert.Equal(t, DefaultStepCount-2, c)
	assert.Empty(t, svc.Tracks()[0].Sections[0].Steps, "step past the new bound is pruned")
}

func TestTrackFlagsAndCycling(t *testing.T) {
	svc := core.NewInMemoryService()
	m := press(t, New(svc), "n", "n", "m")
	assert.Equal(t, 1, m.track)
	assert.True(t, svc.Tracks()[1].Mute)

	m = press(t, m, "t", "s")
	assert.Equal(t, 0, m.track)
	assert.True(t, svc.Tracks()[0].Solo)
	assert.Contains(t, m.View(), "SOLO")

	m = press(t, m, "T")
	assert.Equal(t, 1, m.track)
}

func TestPlayheadSteps(t *testing.T) {
	svc := core.NewInMemoryService()
	m := press(t, New(svc), "n", "a", "tab")

	next, cmd := m.Update(keyMsg("p"))
	m = next.(Model)
	assert.True(t, m.Playing())
	assert.NotNil(t, cmd)

	next, _ = m.Update(playTickMsg{})
	m = next.(Model)
	assert.Equal(t, 1, m.Tick())
	require.NotNil(t, m.Playhead())
	assert.Equal(t, 1, *m.Playhead())

	for i := 0; i < DefaultStepCount; i++ {
		m = press(t, m, ".")
	}
	assert.Equal(t, DefaultStepCount+1, m.Tick())
	assert.Nil(t, m.Playhead(), "play head is in the second section")
	m = press(t, m, "tab")
	require.NotNil(t, m.Playhead())
	assert.Equal(t, 1, *m.Playhead())

	for i := 0; i < DefaultStepCount-1; i++ {
		m = press(t, m, ".")
	}
	assert.Zero(t, m.Tick(), "loop wraps at the longest track")

	m = press(t, m, "p")
	next, cmd = m.Update(playTickMsg{})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Zero(t, m.Tick())
}

func TestEditsSurviveSync(t *testing.T) {
	svc := core.NewInMemoryService()
	require.NoError(t, svc.Load(context.Background(), "demo"))
	m := press(t, New(svc), "n", " ")
	assert.Contains(t, m.StatusLine(), "pending")

	require.NoError(t, svc.Sync(context.Background()))
	assert.False(t, svc.Tracks()[0].ID.IsTemporary())
	assert.Contains(t, m.StatusLine(), "synced")

	m = press(t, m, " ")
	assert.Empty(t, svc.Tracks()[0].Sections[0].Steps)
	assert.Empty(t, m.Message())
}

func TestSampleRowsRecordFile(t *testing.T) {
	svc := core.NewInMemoryService()
	rows := grid.SampleRows([]domain.ID{"kick.wav", "snare.wav"})
	m := press(t, New(svc, WithRows(rows), WithVisibleRows(4)), "n", "j", " ")
	steps := svc.Tracks()[0].Sections[0].Steps
	require.Len(t, steps, 1)
	assert.Equal(t, domain.SampleTrigger("snare.wav"), steps[0].Trigger)
	assert.Equal(t, domain.ID("snare.wav"), steps[0].FileID)
	assert.Equal(t, "sample:snare.wav", m.Matrix().Rows[1].Label)
}

func TestToggleWithoutSectionReportsMessage(t *testing.T) {
	m := press(t, New(core.NewInMemoryService()), " ")
	assert.Contains(t, m.Message(), "no section")
	assert.Contains(t, m.StatusLine(), "no section")
}

func TestWindowResizeAndQuit(t *testing.T) {
	m := press(t, New(core.NewInMemoryService()), "n")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 12})
	m = next.(Model)
	assert.Len(t, m.Matrix().Rows, 4)

	next, cmd := m.Update(keyMsg("q"))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestViewRendersGrid(t *testing.T) {
	m := press(t, New(core.NewInMemoryService()), "n", " ")
	view := m.View()
	assert.Contains(t, view, "track 1")
	assert.Contains(t, view, "C4")
	assert.Contains(t, view, cellOn)
	assert.True(t, strings.Count(view, "\n") > 12)
}
