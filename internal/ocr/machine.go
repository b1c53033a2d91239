// Package ocr tracks a game of NES Tetris from captured frames and turns it
// into the packet stream an emulated game would produce.
//
// A Machine runs one state per phase of the game (waiting for a start,
// following the falling piece, recovering from lost tracking, after the
// end). Each state owns an ordered list of events; every frame all events
// are evaluated and the first whose persistence is met moves the machine to
// the next state.
package ocr

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
)

// MachineOptions configures a Machine.
type MachineOptions struct {
	Config config.OCRConfig
	// NoiseThreshold is the board noise above which a frame is not a clean
	// game picture.
	NoiseThreshold float64
	// Buffer receives the packets of tracked games. It is flushed after
	// every frame.
	Buffer *packet.Buffer
	// Sink receives display data whenever it changes.
	Sink            display.Sink
	AnalyzerFactory func(startLevel int) Analyzer
	Logger          *log.Logger
	// Clock returns the capture time of the frame being processed.
	Clock func() time.Time
}

// Transition is one state change.
type Transition struct {
	Frame int
	From  StateID
	To    StateID
	Event string
}

// FrameReport describes how the machine handled one frame.
type FrameReport struct {
	Frame      int
	State      StateID
	Statuses   []EventStatus
	Transition *Transition
}

// Machine is the OCR state machine. Safe for concurrent use; frames are
// handled one at a time.
type Machine struct {
	env       *env
	buffer    *packet.Buffer
	publisher *display.Publisher
	clock     func() time.Time
	logger    *log.Logger

	mu     sync.Mutex
	state  State
	frames int
}

// NewMachine creates a machine waiting for a game to start.
func NewMachine(opts MachineOptions) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "ocr",
		})
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &env{
		cfg:            opts.Config,
		noiseThreshold: opts.NoiseThreshold,
		logger:         logger,
		global: NewGlobalState(GlobalOptions{
			Buffer:          opts.Buffer,
			AnalyzerFactory: opts.AnalyzerFactory,
			MaxoutCapped:    opts.Config.MaxoutCapped,
			Logger:          logger,
		}),
	}
	return &Machine{
		env:       e,
		buffer:    opts.Buffer,
		publisher: display.NewPublisher(opts.Sink),
		clock:     clock,
		logger:    logger,
		state:     newState(StateBeforeGame, e),
	}
}

// State returns the current state.
func (m *Machine) State() StateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ID()
}

// Frames returns the number of frames handled.
func (m *Machine) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Global returns the shared game state. Callers must not use it while
// frames are being advanced concurrently.
func (m *Machine) Global() *GlobalState { return m.env.global }

// AdvanceFrame runs the current state on f, flushes the packets it produced
// and publishes the new display data.
func (m *Machine) AdvanceFrame(f FrameFeatures) FrameReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	index := m.frames
	m.frames++

	from := m.state.ID()
	next, fired, statuses := m.state.Advance(f, now)
	report := FrameReport{Frame: index, State: from, Statuses: statuses}

	m.flush()
	m.logger.Debug("frame", "frame", index, "state", from, "events", formatStatuses(statuses))

	if fired {
		t := Transition{Frame: index, From: from, To: next, Event: firedEvent(statuses)}
		report.Transition = &t
		m.logger.Info("transition", "frame", index, "from", from, "to", next, "event", t.Event)
		m.state = newState(next, m.env)
	}
	return report
}

// Finish ends a game still in progress, e.g. when the source runs out of
// frames, and flushes its end packet.
func (m *Machine) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.env.global.Game() == nil {
		return
	}
	m.env.global.EndGame()
	m.logger.Info("game ended", "reason", "finished")
	m.flush()
	m.state = newState(StateGameEnd, m.env)
}

func (m *Machine) flush() {
	if m.buffer != nil {
		if err := m.buffer.SendBufferedPackets(); err != nil {
			m.logger.Warn("cannot send packets", "error", err)
		}
	}
	m.publisher.Publish(m.env.global.DisplayData())
}

func firedEvent(statuses []EventStatus) string {
	for _, s := range statuses {
		if s.Triggered {
			return s.Name
		}
	}
	return ""
}

// formatStatuses renders statuses compactly: "name:pre/persist", with a
// trailing "!" on the event that fired.
func formatStatuses(statuses []EventStatus) string {
	var sb strings.Builder
	for i, s := range statuses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.Name)
		sb.WriteByte(':')
		sb.WriteString(flag(s.PreconditionMet))
		sb.WriteByte('/')
		sb.WriteString(flag(s.PersistenceMet))
		if s.Triggered {
			sb.WriteByte('!')
		}
	}
	return sb.String()
}

func flag(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
