package core

// Action represents a semantic controller action, abstracted from physical
// key presses. Terminal, SSH and replay front ends all map onto these.
type Action int

const (
	ActionNone        Action = iota
	ActionShiftLeft          // D-pad left
	ActionShiftRight         // D-pad right
	ActionPushdown           // D-pad down (soft drop)
	ActionRotateLeft         // B
	ActionRotateRight        // A
	ActionRestart            // Start after topout
	ActionQuit               // Leave the session
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionShiftLeft:
		return "ShiftLeft"
	case ActionShiftRight:
		return "ShiftRight"
	case ActionPushdown:
		return "Pushdown"
	case ActionRotateLeft:
		return "RotateLeft"
	case ActionRotateRight:
		return "RotateRight"
	case ActionRestart:
		return "Restart"
	case ActionQuit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// InputFrame is the set of actions held during one simulation tick.
type InputFrame struct {
	// Actions maps action types to whether they are held this frame.
	Actions map[Action]bool
}

// NewInputFrame creates an empty input frame.
func NewInputFrame(held ...Action) InputFrame {
	f := InputFrame{Actions: make(map[Action]bool, len(held))}
	for _, a := range held {
		f.Actions[a] = true
	}
	return f
}

// Set marks an action as held for this frame.
func (f *InputFrame) Set(a Action) {
	if f.Actions == nil {
		f.Actions = make(map[Action]bool)
	}
	f.Actions[a] = true
}

// Unset releases an action.
func (f *InputFrame) Unset(a Action) {
	delete(f.Actions, a)
}

// Has returns true if the given action is held this frame.
func (f InputFrame) Has(a Action) bool {
	if f.Actions == nil {
		return false
	}
	return f.Actions[a]
}

// Clear resets all actions for the next frame.
func (f *InputFrame) Clear() {
	for k := range f.Actions {
		delete(f.Actions, k)
	}
}

// Clone creates a copy of this input frame.
func (f InputFrame) Clone() InputFrame {
	clone := NewInputFrame()
	for k, v := range f.Actions {
		clone.Actions[k] = v
	}
	return clone
}

// KeyState keeps the held actions of the current and previous frame so that
// edges (just pressed, just released) can be derived. Tick must be called
// exactly once per simulated frame.
type KeyState struct {
	thisFrame InputFrame
	lastFrame InputFrame
}

// NewKeyState returns a key state with nothing held.
func NewKeyState() *KeyState {
	return &KeyState{thisFrame: NewInputFrame(), lastFrame: NewInputFrame()}
}

// Tick advances to the next frame with the given held actions.
func (k *KeyState) Tick(held InputFrame) {
	k.lastFrame = k.thisFrame
	k.thisFrame = held.Clone()
}

// IsPressed reports whether the action is held this frame.
func (k *KeyState) IsPressed(a Action) bool {
	return k.thisFrame.Has(a)
}

// IsJustPressed reports whether the action went down this frame.
func (k *KeyState) IsJustPressed(a Action) bool {
	return k.thisFrame.Has(a) && !k.lastFrame.Has(a)
}

// IsJustReleased reports whether the action went up this frame.
func (k *KeyState) IsJustReleased(a Action) bool {
	return !k.thisFrame.Has(a) && k.lastFrame.Has(a)
}

// Held returns a copy of the actions held this frame.
func (k *KeyState) Held() InputFrame {
	return k.thisFrame.Clone()
}
