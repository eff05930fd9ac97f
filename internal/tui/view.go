package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"stepseq/internal/core"
	"stepseq/internal/grid"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("212")).Padding(0, 1)
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	labelStyle    = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("250"))
	onStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	offStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	beatStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	playingStyle  = lipgloss.NewStyle().Background(lipgloss.Color("22"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	syncedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	flagOnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	helpLine      = "hjkl:move  space:toggle  tab:section  t:track  n:new track  a/x:add/remove section  +/-:resize  m:mute  s:solo  p:play  .:step  q:quit"
	cellOn        = "■"
	cellOff       = "·"
	cellBeatStart = "┆"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.sectionTabs())
	b.WriteString("\n\n")
	b.WriteString(m.gridView())
	b.WriteString("\n")
	b.WriteString(m.StatusLine())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(helpLine))
	return b.String()
}

func (m Model) headerView() string {
	tracks := m.svc.Tracks()
	t, ok := m.currentTrack()
	if !ok {
		return headerStyle.Render("stepseq") + dimStyle.Render("  no tracks")
	}
	flags := ""
	if t.Mute {
		flags += " " + flagOnStyle.Render("MUTE")
	}
	if t.Solo {
		flags += " " + flagOnStyle.Render("SOLO")
	}
	play := "STOP"
	if m.playing {
		play = "PLAY"
	}
	return headerStyle.Render(fmt.Sprintf("stepseq  %s (%d/%d)", t.Name, m.track+1, len(tracks))) + flags +
		dimStyle.Render(fmt.Sprintf("  %s step:%03d", play, m.tick))
}

func (m Model) sectionTabs() string {
	t, ok := m.currentTrack()
	if !ok || len(t.Sections) == 0 {
		return dimStyle.Render("no sections")
	}
	tabs := make([]string, 0, len(t.Sections))
	for i, sec := range core.SortSections(t.Sections) {
		label := fmt.Sprintf("%d:%d", i+1, sec.StepCount)
		if i == m.section {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) gridView() string {
	mx := m.Matrix()
	if len(mx.Columns) == 0 {
		return dimStyle.Render("press n to add a track")
	}
	cursorRow, cursorCol := m.Cursor()
	lines := make([]string, 0, len(mx.Rows))
	for r, row := range mx.Rows {
		var line strings.Builder
		line.WriteString(labelStyle.Render(row.Label))
		for c, cell := range row.Cells {
			if c > 0 && cell.Index%4 == 0 {
				line.WriteString(beatStyle.Render(cellBeatStart))
			}
			line.WriteString(renderCell(cell, r == cursorRow && c == cursorCol))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func renderCell(cell grid.Cell, cursor bool) string {
	glyph := offStyle.Render(cellOff)
	if cell.Selected {
		glyph = onStyle.Render(cellOn)
	}
	switch {
	case cursor:
		return cursorStyle.Render(glyph)
	case cell.Playing:
		return playingStyle.Render(glyph)
	}
	return glyph
}

// StatusLine summarises the sync state of the session.
func (m Model) StatusLine() string {
	st := m.svc.Status()
	var s string
	switch {
	case st.LastError != nil:
		s = errorStyle.Render(fmt.Sprintf("sync failed (%d pending): %v", st.Pending, st.LastError))
	case st.Pending > 0:
		s = pendingStyle.Render(fmt.Sprintf("%d pending", st.Pending))
	case st.LastSyncedAt.IsZero():
		s = syncedStyle.Render("synced")
	default:
		s = syncedStyle.Render("synced " + humanize.Time(st.LastSyncedAt))
	}
	if m.message != "" {
		s += "  " + errorStyle.Render(m.message)
	}
	return s
}
