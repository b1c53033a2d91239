package ocr

import "time"

// PersistenceKind selects how long a precondition must hold.
type PersistenceKind int

const (
	// PersistSingleFrame fires on the first frame the precondition holds.
	PersistSingleFrame PersistenceKind = iota
	// PersistConsecutive fires once the precondition held for N frames in a row.
	PersistConsecutive
	// PersistTimed fires once the precondition held for longer than a window.
	PersistTimed
)

// Persistence gates an event on how long its precondition has held.
type Persistence struct {
	Kind   PersistenceKind
	Frames int
	Window time.Duration
}

// SingleFrame returns a persistence that fires immediately.
func SingleFrame() Persistence {
	return Persistence{Kind: PersistSingleFrame}
}

// Consecutive returns a persistence that needs n frames in a row.
func Consecutive(n int) Persistence {
	return Persistence{Kind: PersistConsecutive, Frames: n}
}

// Timed returns a persistence that needs the precondition to hold for
// longer than window.
func Timed(window time.Duration) Persistence {
	return Persistence{Kind: PersistTimed, Window: window}
}

// PersistenceState is the running state of one Persistence.
type PersistenceState struct {
	count int
	since time.Time
}

// Next folds one frame into state and reports whether the event fires.
// A frame where the precondition does not hold resets the state.
func (p Persistence) Next(state PersistenceState, met bool, now time.Time) (PersistenceState, bool) {
	if !met {
		return PersistenceState{}, false
	}
	switch p.Kind {
	case PersistConsecutive:
		state.count++
		return state, state.count >= p.Frames
	case PersistTimed:
		if state.since.IsZero() {
			state.since = now
			return state, false
		}
		return state, now.Sub(state.since) > p.Window
	default:
		return state, true
	}
}
