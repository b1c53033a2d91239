package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/ocr"
)

const maxTransitions = 12

// MonitorUpdate is one processed frame as seen by the monitor.
type MonitorUpdate struct {
	Report    ocr.FrameReport
	Data      display.Data
	Processed int64
	Dropped   int64
}

type monitorDoneMsg struct{}

// MonitorFeed connects an OCR machine to a MonitorModel. It is the
// machine's display sink and receives the pipeline's frame reports.
// Updates are dropped rather than queued when the monitor falls behind.
type MonitorFeed struct {
	stats func() (processed, dropped int64)
	ch    chan MonitorUpdate

	mu     sync.Mutex
	data   display.Data
	closed bool
}

// NewMonitorFeed creates a feed. stats, if set, supplies the pipeline
// counters shown by the monitor.
func NewMonitorFeed(stats func() (processed, dropped int64)) *MonitorFeed {
	return &MonitorFeed{
		stats: stats,
		ch:    make(chan MonitorUpdate, 64),
		data:  display.Empty(),
	}
}

// Push records the latest display data.
func (f *MonitorFeed) Push(d display.Data) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = d.Copy()
}

// Report forwards a frame report together with the latest display data.
func (f *MonitorFeed) Report(r ocr.FrameReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	u := MonitorUpdate{Report: r, Data: f.data}
	if f.stats != nil {
		u.Processed, u.Dropped = f.stats()
	}
	select {
	case f.ch <- u:
	default:
	}
}

// Close tells the monitor the source is exhausted.
func (f *MonitorFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// Updates returns the channel the monitor reads.
func (f *MonitorFeed) Updates() <-chan MonitorUpdate {
	return f.ch
}

func waitForUpdate(ch <-chan MonitorUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return monitorDoneMsg{}
		}
		return u
	}
}

// MonitorModel shows what the OCR machine currently sees: the tracked
// playfield, the state, the event statuses of the last frame and the
// recent transitions.
type MonitorModel struct {
	updates     <-chan MonitorUpdate
	title       string
	last        MonitorUpdate
	transitions []ocr.Transition
	screen      *core.Screen
	quit        key.Binding
	width       int
	height      int

	finished bool
	quitting bool
}

// NewMonitorModel creates a monitor reading feed.
func NewMonitorModel(feed *MonitorFeed, title string) MonitorModel {
	return MonitorModel{
		updates: feed.Updates(),
		title:   title,
		last:    MonitorUpdate{Data: display.Empty()},
		screen:  core.NewScreen(PlayfieldWidth, PlayfieldHeight),
		quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Init starts reading updates.
func (m MonitorModel) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

// Update handles messages for the monitor.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case MonitorUpdate:
		m.last = msg
		if t := msg.Report.Transition; t != nil {
			m.transitions = append(m.transitions, *t)
			if len(m.transitions) > maxTransitions {
				m.transitions = m.transitions[len(m.transitions)-maxTransitions:]
			}
		}
		return m, waitForUpdate(m.updates)

	case monitorDoneMsg:
		m.finished = true
	}
	return m, nil
}

// Transitions returns the recent transitions, oldest first.
func (m MonitorModel) Transitions() []ocr.Transition {
	return m.transitions
}

// Quitting reports whether the user asked to leave.
func (m MonitorModel) Quitting() bool {
	return m.quitting
}

// View renders the monitor.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	m.screen.Clear()
	DrawPlayfield(m.screen, 0, 0, m.last.Data)
	playfield := RenderScreen(m.screen, m.last.Data.Level)

	var side strings.Builder
	side.WriteString(accentStyle.Render(fmt.Sprintf("STATE %s", m.last.Report.State)))
	side.WriteString("\n")
	side.WriteString(dimStyle.Render(fmt.Sprintf("frame %d  processed %d  dropped %d",
		m.last.Report.Frame, m.last.Processed, m.last.Dropped)))
	side.WriteString("\n\n")

	for _, st := range m.last.Report.Statuses {
		mark := dimStyle.Render("  ")
		switch {
		case st.Triggered:
			mark = warningStyle.Render("! ")
		case st.PreconditionMet:
			mark = accentStyle.Render("+ ")
		}
		side.WriteString(mark)
		side.WriteString(st.Name)
		side.WriteString("\n")
	}

	side.WriteString("\n")
	side.WriteString(accentStyle.Render("TRANSITIONS"))
	side.WriteString("\n")
	for i := len(m.transitions) - 1; i >= 0; i-- {
		t := m.transitions[i]
		side.WriteString(fmt.Sprintf("%6d  %s -> %s (%s)\n", t.Frame, t.From, t.To, t.Event))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Render(side.String())

	var b strings.Builder
	if m.title != "" {
		b.WriteString(accentStyle.Render(m.title))
		b.WriteString("\n")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, playfield, "  ", panel))
	b.WriteString("\n")
	if m.finished {
		b.WriteString(warningStyle.Render("source finished"))
		b.WriteString("  ")
	}
	b.WriteString(dimStyle.Render(m.quit.Help().Key + " " + m.quit.Help().Desc))
	return b.String()
}

// RunMonitor shows feed until the user quits.
func RunMonitor(feed *MonitorFeed, title string) error {
	p := tea.NewProgram(
		NewMonitorModel(feed, title),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
