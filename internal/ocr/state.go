package ocr

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/config"
)

// StateID names an OCR state.
type StateID int

const (
	StateBeforeGame StateID = iota
	StatePieceDropping
	StateGameLimbo
	StateGameEnd
)

func (s StateID) String() string {
	switch s {
	case StateBeforeGame:
		return "before-game"
	case StatePieceDropping:
		return "piece-dropping"
	case StateGameLimbo:
		return "game-limbo"
	case StateGameEnd:
		return "game-end"
	default:
		return "unknown"
	}
}

// Event is a condition checked every frame. It fires once its precondition
// has held long enough for its persistence rule.
type Event interface {
	Name() string
	Persistence() Persistence
	// Precondition may remember what it found for Trigger to use.
	Precondition(f FrameFeatures) bool
	// Trigger applies the event and returns the next state.
	Trigger(f FrameFeatures, now time.Time) StateID
}

// EventStatus records how one event evaluated on one frame.
type EventStatus struct {
	Name            string
	PreconditionMet bool
	PersistenceMet  bool
	Triggered       bool
}

// State handles frames until one of its events fires.
type State interface {
	ID() StateID
	// Advance evaluates every event on f in registration order. The first
	// event whose persistence is met fires and its next state is returned.
	Advance(f FrameFeatures, now time.Time) (next StateID, fired bool, statuses []EventStatus)
}

// env is what every state and event can reach.
type env struct {
	cfg            config.OCRConfig
	noiseThreshold float64
	global         *GlobalState
	logger         *log.Logger
}

type baseState struct {
	id      StateID
	env     *env
	events  []Event
	persist []PersistenceState
	frames  int // frames seen in this state, including the current one

	onFrame func(f FrameFeatures, now time.Time)
}

func (s *baseState) ID() StateID { return s.id }

func (s *baseState) register(e Event) {
	s.events = append(s.events, e)
	s.persist = append(s.persist, PersistenceState{})
}

func (s *baseState) Advance(f FrameFeatures, now time.Time) (StateID, bool, []EventStatus) {
	s.frames++
	if s.onFrame != nil {
		s.onFrame(f, now)
	}

	statuses := make([]EventStatus, len(s.events))
	fired := -1
	for i, e := range s.events {
		met := e.Precondition(f)
		var ok bool
		s.persist[i], ok = e.Persistence().Next(s.persist[i], met, now)
		statuses[i] = EventStatus{Name: e.Name(), PreconditionMet: met, PersistenceMet: ok}
		if ok && fired < 0 {
			fired = i
		}
	}
	if fired < 0 {
		return s.id, false, statuses
	}
	statuses[fired].Triggered = true
	return s.events[fired].Trigger(f, now), true, statuses
}

func newState(id StateID, e *env) State {
	switch id {
	case StatePieceDropping:
		return newPieceDroppingState(e)
	case StateGameLimbo:
		return newGameLimboState(e)
	case StateGameEnd:
		return newGameEndState(e)
	default:
		return newBeforeGameState(e)
	}
}
