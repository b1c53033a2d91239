package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestKeyMapAction(t *testing.T) {
	km := NewKeyMap(config.DefaultEmulatorConfig().Keybinds)

	tests := []struct {
		name     string
		msg      tea.KeyMsg
		expected core.Action
	}{
		{"left arrow", tea.KeyMsg{Type: tea.KeyLeft}, core.ActionShiftLeft},
		{"a", runeKey('a'), core.ActionShiftLeft},
		{"right arrow", tea.KeyMsg{Type: tea.KeyRight}, core.ActionShiftRight},
		{"down arrow", tea.KeyMsg{Type: tea.KeyDown}, core.ActionPushdown},
		{"z", runeKey('z'), core.ActionRotateLeft},
		{"x", runeKey('x'), core.ActionRotateRight},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, core.ActionRestart},
		{"q", runeKey('q'), core.ActionQuit},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, core.ActionQuit},
		{"unbound", runeKey('m'), core.ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := km.Action(tt.msg); got != tt.expected {
				t.Errorf("Action(%q) = %v, expected %v", tt.msg.String(), got, tt.expected)
			}
		})
	}
}

func TestKeyMapCustomBindings(t *testing.T) {
	kb := config.DefaultEmulatorConfig().Keybinds
	kb.RotateRight = []string{"l"}
	km := NewKeyMap(kb)

	if got := km.Action(runeKey('l')); got != core.ActionRotateRight {
		t.Errorf("Action(l) = %v, expected RotateRight", got)
	}
	if got := km.Action(runeKey('x')); got != core.ActionNone {
		t.Errorf("Action(x) = %v, expected None after rebinding", got)
	}
	if got := km.RotateRight.Help().Key; got != "l" {
		t.Errorf("help key = %q, expected %q", got, "l")
	}
}

func TestHoldTracker(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHoldTracker(100 * time.Millisecond)

	if !h.Press(core.ActionShiftLeft, start) {
		t.Error("first press should report a new hold")
	}
	if h.Press(core.ActionShiftLeft, start.Add(50*time.Millisecond)) {
		t.Error("auto-repeat should extend the hold, not start a new one")
	}
	if !h.Held().Has(core.ActionShiftLeft) {
		t.Error("ShiftLeft should be held")
	}

	if released := h.Expire(start.Add(120 * time.Millisecond)); len(released) != 0 {
		t.Errorf("Expire() released %v before the extended window ended", released)
	}

	released := h.Expire(start.Add(151 * time.Millisecond))
	if len(released) != 1 || released[0] != core.ActionShiftLeft {
		t.Errorf("Expire() = %v, expected [ShiftLeft]", released)
	}
	if h.Held().Has(core.ActionShiftLeft) {
		t.Error("ShiftLeft should be released")
	}
}

func TestHoldTrackerReset(t *testing.T) {
	now := time.Now()
	h := NewHoldTracker(0)
	h.Press(core.ActionPushdown, now)
	h.Press(core.ActionRotateLeft, now)
	h.Reset()

	if got := h.Held(); got.Has(core.ActionPushdown) || got.Has(core.ActionRotateLeft) {
		t.Error("Reset() should release every action")
	}
	if !h.Press(core.ActionPushdown, now) {
		t.Error("press after Reset() should start a new hold")
	}
}
