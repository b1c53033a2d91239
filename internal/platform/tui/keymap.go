package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// DefaultHoldWindow is how long a key counts as held after its last press.
// Terminals only report presses (and auto-repeat), never releases.
const DefaultHoldWindow = 120 * time.Millisecond

// KeyMap translates Bubble Tea key messages to controller actions.
type KeyMap struct {
	ShiftLeft   key.Binding
	ShiftRight  key.Binding
	Pushdown    key.Binding
	RotateLeft  key.Binding
	RotateRight key.Binding
	Restart     key.Binding
	Quit        key.Binding
}

// NewKeyMap builds bindings from the configured key names.
func NewKeyMap(kb config.Keybinds) KeyMap {
	return KeyMap{
		ShiftLeft:   binding(kb.ShiftLeft, "left"),
		ShiftRight:  binding(kb.ShiftRight, "right"),
		Pushdown:    binding(kb.Pushdown, "drop"),
		RotateLeft:  binding(kb.RotateLeft, "rotate ccw"),
		RotateRight: binding(kb.RotateRight, "rotate cw"),
		Restart:     binding(kb.Restart, "restart"),
		Quit:        binding(kb.Quit, "quit"),
	}
}

func binding(keys []string, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(strings.Join(keys, "/"), desc),
	)
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ShiftLeft, k.ShiftRight, k.RotateLeft, k.RotateRight, k.Pushdown, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ShiftLeft, k.ShiftRight, k.Pushdown},
		{k.RotateLeft, k.RotateRight},
		{k.Restart, k.Quit},
	}
}

// Action returns the action bound to msg, or ActionNone.
func (k KeyMap) Action(msg tea.KeyMsg) core.Action {
	switch {
	case key.Matches(msg, k.Quit):
		return core.ActionQuit
	case key.Matches(msg, k.Restart):
		return core.ActionRestart
	case key.Matches(msg, k.ShiftLeft):
		return core.ActionShiftLeft
	case key.Matches(msg, k.ShiftRight):
		return core.ActionShiftRight
	case key.Matches(msg, k.Pushdown):
		return core.ActionPushdown
	case key.Matches(msg, k.RotateLeft):
		return core.ActionRotateLeft
	case key.Matches(msg, k.RotateRight):
		return core.ActionRotateRight
	}
	return core.ActionNone
}

// HoldTracker turns a stream of key presses into held/released controller
// state. A press holds its action for the hold window; auto-repeat keeps
// extending it, so holding a key charges DAS like a real controller.
type HoldTracker struct {
	window time.Duration
	until  map[core.Action]time.Time
}

// NewHoldTracker creates a tracker. A non-positive window uses
// DefaultHoldWindow.
func NewHoldTracker(window time.Duration) *HoldTracker {
	if window <= 0 {
		window = DefaultHoldWindow
	}
	return &HoldTracker{window: window, until: make(map[core.Action]time.Time)}
}

// Press records a press of a at now and reports whether a was not held
// before.
func (h *HoldTracker) Press(a core.Action, now time.Time) bool {
	_, held := h.until[a]
	h.until[a] = now.Add(h.window)
	return !held
}

// Expire releases every action whose window ended before now and returns
// them.
func (h *HoldTracker) Expire(now time.Time) []core.Action {
	var released []core.Action
	for a, until := range h.until {
		if now.After(until) {
			released = append(released, a)
			delete(h.until, a)
		}
	}
	return released
}

// Held returns the actions currently held.
func (h *HoldTracker) Held() core.InputFrame {
	f := core.NewInputFrame()
	for a := range h.until {
		f.Set(a)
	}
	return f
}

// Reset releases everything.
func (h *HoldTracker) Reset() {
	clear(h.until)
}
