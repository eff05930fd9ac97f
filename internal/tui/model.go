// Package tui is a terminal grid editor over an editing session.
//
// The model keeps positions (track, section, row, column) instead of ids:
// temporary ids are replaced once the background sync persists an entity, so
// every update re-reads the session collection.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"stepseq/internal/core"
	"stepseq/internal/grid"
	"stepseq/internal/playback"
	"stepseq/pkg/domain"
)

// DefaultStepCount is used for sections created from the editor.
const DefaultStepCount = 16

type playTickMsg struct{}

type statusTickMsg struct{}

// Option configures a Model.
type Option func(*Model)

// WithRows replaces the piano-roll rows, e.g. with grid.SampleRows.
func WithRows(rows []domain.Trigger) Option {
	return func(m *Model) {
		if len(rows) > 0 {
			m.rows = rows
		}
	}
}

// WithVisibleRows sets the grid height.
func WithVisibleRows(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.height = n
		}
	}
}

// WithStepInterval sets the play-head speed.
func WithStepInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithInstrument records fileID as the source file of steps created on note
// rows.
func WithInstrument(fileID domain.ID) Option {
	return func(m *Model) { m.instrument = fileID }
}

// Model is the bubbletea model of the editor.
type Model struct {
	svc        *core.Service
	rows       []domain.Trigger
	height     int
	interval   time.Duration
	instrument domain.ID

	track   int
	section int
	row     int
	col     int
	offset  int

	playing bool
	tick    int

	message  string
	quitting bool
}

// New returns an editor over svc. The cursor starts on C4 when the rows
// include it.
func New(svc *core.Service, opts ...Option) Model {
	m := Model{
		svc:      svc,
		rows:     grid.NoteRows(domain.MustPitch("C6"), domain.MustPitch("C2")),
		height:   12,
		interval: 125 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&m)
	}
	c4 := domain.NoteTrigger(domain.MustPitch("C4"))
	for i, r := range m.rows {
		if r == c4 {
			m.row = i
			break
		}
	}
	m.scroll()
	return m
}

// Init starts the status refresh loop.
func (m Model) Init() tea.Cmd {
	return statusTick()
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m Model) playTick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return playTickMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		if h := msg.Height - 8; h > 0 {
			m.height = h
			m.scroll()
		}
	case playTickMsg:
		if !m.playing {
			return m, nil
		}
		m.advance()
		return m, m.playTick()
	case statusTickMsg:
		return m, statusTick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.moveRow(-1)
	case "down", "j":
		m.moveRow(1)
	case "pgup":
		m.moveRow(-m.height)
	case "pgdown":
		m.moveRow(m.height)
	case "left", "h":
		m.moveCol(-1)
	case "right", "l":
		m.moveCol(1)
	case " ", "space", "enter":
		m.toggle()
	case "tab":
		m.cycleSection(1)
	case "shift+tab":
		m.cycleSection(-1)
	case "t":
		m.cycleTrack(1)
	case "T":
		m.cycleTrack(-1)
	case "n":
		t := m.svc.AddTrack(fmt.Sprintf("track %d", len(m.svc.Tracks())+1))
		if _, err := m.svc.AddSection(t.ID, DefaultStepCount, -1); err != nil {
			m.fail(err)
		}
		m.track, m.section, m.col = len(m.svc.Tracks())-1, 0, 0
	case "a":
		m.addSection()
	case "x":
		m.removeSection()
	case "+", "=":
		m.resize(1)
	case "-", "_":
		m.resize(-1)
	case "m":
		if t, ok := m.currentTrack(); ok {
			m.fail(m.svc.SetMute(t.ID, !t.Mute))
		}
	case "s":
		if t, ok := m.currentTrack(); ok {
			m.fail(m.svc.SetSolo(t.ID, !t.Solo))
		}
	case "p":
		m.playing = !m.playing
		if m.playing {
			return m, m.playTick()
		}
	case ".":
		m.advance()
	case "0":
		m.tick = 0
	}
	return m, nil
}

func (m *Model) fail(err error) {
	if err != nil {
		m.message = err.Error()
	}
}

func (m Model) currentTrack() (core.Track, bool) {
	tracks := m.svc.Tracks()
	if m.track < 0 || m.track >= len(tracks) {
		return core.Track{}, false
	}
	return tracks[m.track], true
}

func (m Model) currentSection() (core.Track, core.Section, bool) {
	t, ok := m.currentTrack()
	if !ok {
		return t, core.Section{}, false
	}
	sections := core.SortSections(t.Sections)
	if m.section < 0 || m.section >= len(sections) {
		return t, core.Section{}, false
	}
	return t, sections[m.section], true
}

func (m *Model) moveRow(delta int) {
	m.row = clamp(m.row+delta, 0, len(m.rows)-1)
	m.scroll()
}

// scroll keeps the cursor row inside the visible window.
func (m *Model) scroll() {
	if m.row < m.offset {
		m.offset = m.row
	}
	if m.row >= m.offset+m.height {
		m.offset = m.row - m.height + 1
	}
	m.offset = clamp(m.offset, 0, max(len(m.rows)-m.height, 0))
}

func (m *Model) moveCol(delta int) {
	_, sec, ok := m.currentSection()
	if !ok {
		return
	}
	m.col = clamp(m.col+delta, 0, sec.StepCount-1)
}

func (m *Model) clampCol() {
	_, sec, ok := m.currentSection()
	if !ok {
		m.col = 0
		return
	}
	m.col = clamp(m.col, 0, sec.StepCount-1)
}

func (m *Model) cycleSection(delta int) {
	t, ok := m.currentTrack()
	if !ok || len(t.Sections) == 0 {
		return
	}
	m.section = wrap(m.section+delta, len(t.Sections))
	m.clampCol()
}

func (m *Model) cycleTrack(delta int) {
	n := len(m.svc.Tracks())
	if n == 0 {
		return
	}
	m.track = wrap(m.track+delta, n)
	m.section = 0
	m.clampCol()
}

func (m *Model) toggle() {
	t, sec, ok := m.currentSection()
	if !ok {
		m.message = "no section: press n for a track or a for a section"
		return
	}
	trigger := m.rows[m.row]
	fileID := m.instrument
	if trigger.Kind == domain.TriggerSample {
		fileID = trigger.FileID
	}
	_, err := m.svc.ToggleStep(t.ID, sec.ID, m.col, trigger, fileID)
	m.fail(err)
}

func (m *Model) addSection() {
	t, ok := m.currentTrack()
	if !ok {
		return
	}
	count := DefaultStepCount
	if _, sec, ok := m.currentSection(); ok {
		count = sec.StepCount
	}
	if _, err := m.svc.AddSection(t.ID, count, -1); err != nil {
		m.fail(err)
		return
	}
	m.section = len(t.Sections)
}

func (m *Model) removeSection() {
	t, sec, ok := m.currentSection()
	if !ok {
		return
	}
	if _, err := m.svc.RemoveSection(t.ID, sec.ID); err != nil {
		m.fail(err)
		return
	}
	if m.section > 0 {
		m.section--
	}
	m.clampCol()
}

func (m *Model) resize(delta int) {
	t, sec, ok := m.currentSection()
	if !ok {
		return
	}
	next := sec.StepCount + delta
	if next < 1 {
		return
	}
	m.fail(m.svc.ResizeSection(t.ID, sec.ID, next))
	m.clampCol()
}

// advance moves the play head one step along the longest track, wrapping at
// the loop end.
func (m *Model) advance() {
	length := playback.BuildSchedule(m.svc.Tracks()).Length
	if length == 0 {
		m.tick = 0
		return
	}
	m.tick = (m.tick + 1) % length
}

// Playhead returns the play position local to the current section, or nil
// when it lies outside of it.
func (m Model) Playhead() *int {
	t, sec, ok := m.currentSection()
	if !ok {
		return nil
	}
	start, ok := core.AbsoluteOffsets(t.Sections)[sec.ID]
	if !ok {
		return nil
	}
	local := m.tick - start
	if local < 0 || local >= sec.StepCount {
		return nil
	}
	return &local
}

// Matrix projects the visible part of the current section.
func (m Model) Matrix() grid.Matrix {
	_, sec, ok := m.currentSection()
	if !ok {
		return grid.Matrix{}
	}
	return grid.Project(sec.Steps, grid.SectionWindow(sec, m.offset, m.height), m.rows, m.Playhead())
}

// Cursor returns the cursor position in matrix coordinates.
func (m Model) Cursor() (row, col int) { return m.row - m.offset, m.col }

// Tick returns the absolute play position.
func (m Model) Tick() int { return m.tick }

// Playing reports whether the play head advances on its own.
func (m Model) Playing() bool { return m.playing }

// Message returns the last error shown in the status line.
func (m Model) Message() string { return m.message }

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}
