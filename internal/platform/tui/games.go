package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/storage"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Games browser layout constants
const (
	minWidthForPreview = 110 // Minimum width to show the board preview
	maxGames           = 100 // Max games to load
)

// GamesView selects which games the browser lists.
type GamesView int

const (
	ViewRecent GamesView = iota
	ViewTop
)

func (v GamesView) String() string {
	if v == ViewTop {
		return "TOP GAMES"
	}
	return "RECENT GAMES"
}

// GamesKeyMap defines the key bindings for the games browser.
type GamesKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Switch key.Binding
	Delete key.Binding
	Quit   key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k GamesKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Switch, k.Delete, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k GamesKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Switch, k.Delete, k.Quit},
	}
}

// DefaultGamesKeyMap returns default key bindings.
func DefaultGamesKeyMap() GamesKeyMap {
	return GamesKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "scroll down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "final board"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "recent/top"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// GamesModel is the Bubble Tea model for browsing recorded games.
type GamesModel struct {
	store   *storage.Store
	view    GamesView
	games   []storage.GameRecord
	table   table.Model
	help    help.Model
	keys    GamesKeyMap
	width   int
	height  int
	err     error
	preview *gamePreview

	quitting bool
}

// gamePreview is the final board of the selected game.
type gamePreview struct {
	id     string
	data   display.Data
	screen *core.Screen
}

// NewGamesModel creates a games browser over store.
func NewGamesModel(store *storage.Store, width, height int) GamesModel {
	h := help.New()
	h.ShowAll = false

	m := GamesModel{
		store:  store,
		keys:   DefaultGamesKeyMap(),
		help:   h,
		width:  width,
		height: height,
	}
	m.table = m.createTable()
	m.loadGames()
	return m
}

func (m *GamesModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Source", Width: 8},
		{Title: "Player", Width: 10},
		{Title: "Level", Width: 7},
		{Title: "Lines", Width: 5},
		{Title: "Score", Width: 9},
		{Title: "TRT", Width: 4},
		{Title: "End", Width: 10},
		{Title: "Played", Width: 14},
	}

	height := m.height - 8
	if height < 5 {
		height = 5
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func (m *GamesModel) loadGames() {
	m.err = nil
	if m.store == nil {
		m.games = nil
		m.updateTableRows()
		return
	}

	var err error
	if m.view == ViewTop {
		m.games, err = m.store.TopGames(maxGames)
	} else {
		m.games, err = m.store.RecentGames(maxGames)
	}
	if err != nil {
		m.games = nil
		m.err = err
	}
	m.updateTableRows()
}

// GameRow formats one game as table cells.
func GameRow(g storage.GameRecord) table.Row {
	id := g.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return table.Row{
		id,
		g.Source,
		g.Player,
		fmt.Sprintf("%d-%d", g.StartLevel, g.Level),
		fmt.Sprintf("%d", g.Lines),
		humanize.Comma(int64(g.Score)),
		fmt.Sprintf("%d%%", int(g.TetrisRate*100+0.5)),
		g.EndReason,
		humanize.Time(g.CreatedAt),
	}
}

func (m *GamesModel) updateTableRows() {
	rows := make([]table.Row, len(m.games))
	for i, g := range m.games {
		rows[i] = GameRow(g)
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

func (m *GamesModel) selected() (storage.GameRecord, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.games) {
		return storage.GameRecord{}, false
	}
	return m.games[i], true
}

// loadPreview replays the selected game's stream to its final board.
func (m *GamesModel) loadPreview() {
	sel, ok := m.selected()
	if !ok || m.store == nil {
		return
	}
	rec, err := m.store.Game(sel.ID)
	if err != nil || rec == nil {
		m.err = err
		return
	}

	data := display.Empty()
	data.Level = rec.StartLevel
	err = storage.Replay(rec.Stream, func(_ int, board *tetris.Board, st tetris.SmartGameStatus) {
		data.Board = board
		data.Level = st.Level
		data.Lines = st.Lines
		data.Score = st.Score
	})
	if err != nil {
		m.err = err
		return
	}
	data.TetrisRate = rec.TetrisRate
	m.preview = &gamePreview{id: rec.ID, data: data, screen: core.NewScreen(PlayfieldWidth, PlayfieldHeight)}
}

func (m *GamesModel) deleteSelected() {
	sel, ok := m.selected()
	if !ok || m.store == nil {
		return
	}
	if err := m.store.DeleteGame(sel.ID); err != nil {
		m.err = err
		return
	}
	if m.preview != nil && m.preview.id == sel.ID {
		m.preview = nil
	}
	m.loadGames()
}

// Init initializes the games browser.
func (m GamesModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the games browser.
func (m GamesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Switch):
			if m.view == ViewRecent {
				m.view = ViewTop
			} else {
				m.view = ViewRecent
			}
			m.preview = nil
			m.loadGames()
			return m, nil

		case key.Matches(msg, m.keys.Select):
			m.loadPreview()
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			m.deleteSelected()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.createTable()
		m.updateTableRows()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the games browser.
func (m GamesModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		MarginBottom(1)
	b.WriteString(titleStyle.Render(m.view.String()))
	b.WriteString("\n\n")

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	content := boxStyle.Render(m.renderTableContent())

	if m.preview != nil && m.width >= minWidthForPreview {
		m.preview.screen.Clear()
		DrawPlayfield(m.preview.screen, 0, 0, m.preview.data)
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, "  ",
			RenderScreen(m.preview.screen, m.preview.data.Level))
	}
	b.WriteString(content)

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(m.err.Error()))
	}

	b.WriteString("\n")
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m GamesModel) renderTableContent() string {
	if len(m.games) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			Padding(2, 4)
		return emptyStyle.Render("No games recorded yet.\nPlay or capture a game to see it here.")
	}
	return m.table.View()
}

// RunGames runs the games browser.
func RunGames(store *storage.Store, width, height int) error {
	p := tea.NewProgram(
		NewGamesModel(store, width, height),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
