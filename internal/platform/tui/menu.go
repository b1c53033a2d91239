package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/nestris-ocr/internal/config"
)

// MenuItem is one selectable start level.
type MenuItem struct {
	Title string
	// Preset is empty for the custom level entry.
	Preset config.LevelPreset
}

var menuItems = []MenuItem{
	{Title: "Easy", Preset: config.PresetEasy},
	{Title: "Normal", Preset: config.PresetNormal},
	{Title: "Hard", Preset: config.PresetHard},
	{Title: "Expert", Preset: config.PresetExpert},
	{Title: "Killscreen", Preset: config.PresetKillscreen},
	{Title: "Custom"},
}

// MenuKeyMap defines the key bindings of the level menu.
type MenuKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Select key.Binding
	Quit   key.Binding
}

// DefaultMenuKeyMap returns default key bindings.
func DefaultMenuKeyMap() MenuKeyMap {
	return MenuKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "w", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "s", "j")),
		Left:   key.NewBinding(key.WithKeys("left", "a", "h")),
		Right:  key.NewBinding(key.WithKeys("right", "d", "l")),
		Select: key.NewBinding(key.WithKeys("enter", " ")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c")),
	}
}

// MenuModel is the Bubble Tea model for picking the start level.
type MenuModel struct {
	cursor   int
	custom   int
	width    int
	height   int
	keys     MenuKeyMap
	quitting bool
	selected int
}

// NewMenuModel creates a level menu. custom is the initial custom level.
func NewMenuModel(custom int) MenuModel {
	return MenuModel{
		custom:   config.ClampStartLevel(custom),
		keys:     DefaultMenuKeyMap(),
		selected: -1,
	}
}

// Init initializes the menu model.
func (m MenuModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the menu.
func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m MenuModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(menuItems)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Left):
		if m.isCustom() {
			m.custom = config.ClampStartLevel(m.custom - 1)
		}

	case key.Matches(msg, m.keys.Right):
		if m.isCustom() {
			m.custom = config.ClampStartLevel(m.custom + 1)
		}

	case key.Matches(msg, m.keys.Select):
		m.selected = m.levelAt(m.cursor)
	}

	return m, nil
}

func (m MenuModel) isCustom() bool {
	return menuItems[m.cursor].Preset == ""
}

func (m MenuModel) levelAt(i int) int {
	if p := menuItems[i].Preset; p != "" {
		return p.StartLevel()
	}
	return m.custom
}

// View renders the menu.
func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(accentStyle.Render(centerText("  N E S T R I S  ", m.width)))
	b.WriteString("\n\n")
	b.WriteString(centerText("Select a start level", m.width))
	b.WriteString("\n\n")

	for i, item := range menuItems {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-10s %2d", cursor, item.Title, m.levelAt(i))
		if item.Preset == "" {
			line = fmt.Sprintf("%s%-10s < %2d >", cursor, item.Title, m.custom)
		}
		b.WriteString(centerText(line, m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	controls := "Up/Down: Navigate  |  Left/Right: Level  |  Enter: Play  |  Q: Quit"
	b.WriteString(dimStyle.Render(centerText(controls, m.width)))
	b.WriteString("\n")

	return b.String()
}

// Selected returns the chosen start level, or -1 if none was chosen yet.
func (m MenuModel) Selected() int {
	return m.selected
}

// IsQuitting returns true if user requested to quit.
func (m MenuModel) IsQuitting() bool {
	return m.quitting
}

// centerText centers text within given width.
func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
