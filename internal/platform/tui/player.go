package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/emulator"
)

// PlayerOptions configures a PlayerModel.
type PlayerOptions struct {
	FPS        int
	StartLevel int
	Keybinds   config.Keybinds
	// HoldWindow is how long a key press is held; 0 uses DefaultHoldWindow.
	HoldWindow time.Duration
	// Title is shown above the playfield, e.g. the player name.
	Title string
	// Clock returns the current time; nil means time.Now.
	Clock func() time.Time
}

// PlayerModel is the Bubble Tea model for playing an emulator session.
type PlayerModel struct {
	session *emulator.Session
	opts    PlayerOptions
	keys    KeyMap
	holds   *HoldTracker
	screen  *core.Screen
	help    help.Model
	width   int
	height  int

	quitting bool
}

// NewPlayerModel creates a player for session. The session is started by
// Init and stopped by its owner.
func NewPlayerModel(session *emulator.Session, opts PlayerOptions) PlayerModel {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	return PlayerModel{
		session: session,
		opts:    opts,
		keys:    NewKeyMap(opts.Keybinds),
		holds:   NewHoldTracker(opts.HoldWindow),
		screen:  core.NewScreen(PlayfieldWidth, PlayfieldHeight),
		help:    help.New(),
	}
}

// Init starts the session and the tick loop.
func (m PlayerModel) Init() tea.Cmd {
	m.session.Start()
	return tickCmd(m.opts.FPS)
}

// Update handles messages and updates the model state.
func (m PlayerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		return m.handleTick()
	}

	return m, nil
}

func (m PlayerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a := m.keys.Action(msg); a {
	case core.ActionNone:
		return m, nil

	case core.ActionQuit:
		m.quitting = true
		return m, tea.Quit

	case core.ActionRestart:
		if m.session.Phase() == emulator.PhaseEnded {
			m.holds.Reset()
			m.session.SetHeld(core.NewInputFrame())
			m.session.Restart(m.opts.StartLevel)
		}
		return m, nil

	default:
		if m.holds.Press(a, m.opts.Clock()) {
			m.session.Press(a)
		}
		return m, nil
	}
}

func (m PlayerModel) handleTick() (tea.Model, tea.Cmd) {
	for _, a := range m.holds.Expire(m.opts.Clock()) {
		m.session.Release(a)
	}
	m.session.Tick()
	return m, tickCmd(m.opts.FPS)
}

// Quitting reports whether the player asked to leave.
func (m PlayerModel) Quitting() bool {
	return m.quitting
}

// View renders the current state to a string for display.
func (m PlayerModel) View() string {
	if m.quitting {
		return ""
	}

	data := m.session.Data()
	m.screen.Clear()
	DrawPlayfield(m.screen, 0, 0, data)

	var b strings.Builder
	if m.opts.Title != "" {
		b.WriteString(accentStyle.Render(m.opts.Title))
		b.WriteString("\n")
	}
	b.WriteString(RenderScreen(m.screen, data.Level))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.help.View(m.keys)))

	if m.width == 0 || m.height == 0 {
		return b.String()
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, b.String())
}

func (m PlayerModel) statusLine() string {
	switch m.session.Phase() {
	case emulator.PhaseCountdown:
		return accentStyle.Render("get ready")
	case emulator.PhaseEnded:
		sum := m.session.Summary()
		return warningStyle.Render(fmt.Sprintf("GAME OVER  score %d  lines %d  (%s to restart)",
			sum.Score, sum.Lines, m.keys.Restart.Help().Key))
	default:
		return dimStyle.Render(fmt.Sprintf("level %02d", m.session.Summary().Level))
	}
}

// RunPlayer plays session in the terminal until the player quits.
func RunPlayer(session *emulator.Session, opts PlayerOptions) error {
	p := tea.NewProgram(
		NewPlayerModel(session, opts),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
