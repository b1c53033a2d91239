package emulator

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Config     config.EmulatorConfig
	StartLevel int
	Generator  PieceGenerator
	// Buffer receives one packet per game event; nil disables packets.
	Buffer *packet.Buffer
	// Sink receives display data whenever it changes; nil disables it.
	Sink   display.Sink
	Logger *log.Logger
	// Clock returns the current time; nil means time.Now.
	Clock func() time.Time
}

// Phase is the lifecycle phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCountdown
	PhasePlaying
	PhaseEnded
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session runs a GameState in real time. Each Tick executes as many frames
// as wall-clock time requires, so the emulation stays at the configured
// frame rate regardless of how irregularly Tick is called.
type Session struct {
	opts      SessionOptions
	logger    *log.Logger
	publisher *display.Publisher

	mu         sync.Mutex
	phase      Phase
	state      *GameState
	held       core.InputFrame
	epoch      time.Time
	framesDone int
	countdown  int
	delta      *packet.TimeDelta
	lastPose   tetris.Pose
	recovery   bool
	lock       pendingLock
}

// pendingLock is a locked piece waiting for the next spawn, when its
// placement packet can name the piece after next.
type pendingLock struct {
	piece    tetris.MoveableTetromino
	pushdown int
	set      bool
}

// NewSession creates an idle session.
func NewSession(opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Config.FPS <= 0 {
		opts.Config = config.DefaultEmulatorConfig()
	}
	if opts.Generator == nil {
		opts.Generator = NewRandomGenerator(opts.Clock().UnixNano())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "emulator",
		})
	}
	return &Session{
		opts:      opts,
		logger:    logger,
		publisher: display.NewPublisher(opts.Sink),
		held:      core.NewInputFrame(),
	}
}

// Start begins the countdown, or the game directly when the countdown is
// disabled.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	s.delta = packet.NewTimeDelta(now)
	if s.opts.Config.Countdown > 0 {
		s.phase = PhaseCountdown
		s.epoch = now
		s.countdown = s.opts.Config.Countdown
		s.buffer(packet.Countdown{DelayMs: s.delta.Delta(now), Value: s.countdown})
		s.publishLocked()
		s.flushLocked()
		return
	}
	s.startGameLocked(now)
	s.flushLocked()
}

// Restart ends the current game, if any, and starts a new one at level.
func (s *Session) Restart(level int) {
	s.mu.Lock()
	if s.phase == PhasePlaying {
		s.endGameLocked("restart")
	}
	s.opts.StartLevel = level
	s.phase = PhaseIdle
	s.mu.Unlock()
	s.Start()
}

// Stop ends the game. Further ticks do nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhasePlaying {
		s.endGameLocked("stopped")
	}
	s.phase = PhaseEnded
	s.flushLocked()
}

// SetHeld replaces the controller state used for the following frames.
func (s *Session) SetHeld(held core.InputFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = held.Clone()
}

// Press marks an action as held.
func (s *Session) Press(a core.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held.Set(a)
}

// Release marks an action as released.
func (s *Session) Release(a core.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held.Unset(a)
}

// RequestRecovery queues a recovery packet, sent on the next frame that has
// an active piece.
func (s *Session) RequestRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovery = true
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a copy of the running game, or nil before the game starts.
func (s *Session) State() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.state.Copy()
}

// Summary returns the score, lines and level of the running game.
func (s *Session) Summary() core.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return core.GameState{}
	}
	st := s.state.Status()
	return core.GameState{
		Score:    st.DisplayScore(s.opts.Config.MaxoutCapped),
		Lines:    st.Lines,
		Level:    st.Level,
		GameOver: s.state.ToppedOut(),
	}
}

// Data returns the current display data.
func (s *Session) Data() display.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataLocked()
}

// Tick executes the frames that are due and flushes packets and display
// data. It returns how many frames ran.
func (s *Session) Tick() core.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock()
	frames := 0
	switch s.phase {
	case PhaseCountdown:
		s.tickCountdownLocked(now)
	case PhasePlaying:
		target := int(now.Sub(s.epoch).Seconds() * float64(s.opts.Config.FPS))
		for s.framesDone < target && s.phase == PhasePlaying {
			s.advanceLocked()
			frames++
		}
	}

	s.publishLocked()
	s.flushLocked()

	res := core.StepResult{Frames: frames}
	if s.state != nil {
		st := s.state.Status()
		res.State = core.GameState{
			Score:    st.DisplayScore(s.opts.Config.MaxoutCapped),
			Lines:    st.Lines,
			Level:    st.Level,
			GameOver: s.state.ToppedOut(),
		}
	}
	return res
}

func (s *Session) tickCountdownLocked(now time.Time) {
	remaining := s.opts.Config.Countdown - int(now.Sub(s.epoch)/time.Second)
	if remaining >= s.countdown {
		return
	}
	s.countdown = max(0, remaining)
	s.buffer(packet.Countdown{DelayMs: s.delta.Delta(now), Value: s.countdown})
	if s.countdown == 0 {
		s.startGameLocked(now)
	}
}

func (s *Session) startGameLocked(now time.Time) {
	s.state = NewGameState(s.opts.Config, s.opts.StartLevel, s.opts.Generator)
	s.phase = PhasePlaying
	s.epoch = now
	s.framesDone = 0
	s.countdown = 0
	s.lock = pendingLock{}
	s.recovery = false
	if s.delta == nil {
		s.delta = packet.NewTimeDelta(now)
	}
	if active, ok := s.state.Active(); ok {
		s.lastPose = active.Pose()
	}
	s.buffer(packet.Start{
		Level:   s.opts.StartLevel,
		Current: s.state.CurrentType(),
		Next:    s.state.Next(),
	})
	s.logger.Info("game started", "level", s.opts.StartLevel, "current", s.state.CurrentType(), "next", s.state.Next())
}

// frameTime returns the emulated time of the current frame so that packet
// delays do not depend on when Tick happened to run.
func (s *Session) frameTime() time.Time {
	return s.epoch.Add(time.Duration(s.framesDone) * time.Second / time.Duration(s.opts.Config.FPS))
}

func (s *Session) advanceLocked() {
	res := s.state.ExecuteFrame(s.held)
	s.framesDone++

	if res.Locked != nil {
		s.lock = pendingLock{piece: *res.Locked, pushdown: res.PushdownPoints, set: true}
		s.logger.Debug("piece locked", "piece", res.Locked.TetrisNotation(), "pushdown", res.PushdownPoints, "frame", s.state.Frame())
	}

	// A topout spawn still completes the last placement.
	if (res.Spawned || res.ToppedOut) && s.lock.set {
		s.buffer(packet.Placement{
			DelayMs:  s.delta.Delta(s.frameTime()),
			NextNext: s.state.Next(),
			Pose:     s.lock.piece.Pose(),
			Pushdown: min(s.lock.pushdown, packet.MaxPushdown),
		})
		s.lock = pendingLock{}
	}

	if res.ToppedOut {
		s.buffer(packet.FullBoard{DelayMs: s.delta.Delta(s.frameTime()), Board: s.state.IsolatedBoard()})
		s.endGameLocked("topout")
		s.phase = PhaseEnded
		return
	}

	if active, ok := s.state.Active(); ok {
		if res.Spawned {
			s.lastPose = tetris.FromSpawnPose(active.Type).Pose()
		}
		if pose := active.Pose(); pose != s.lastPose {
			s.lastPose = pose
			s.buffer(packet.AbbrBoard{DelayMs: s.delta.Delta(s.frameTime()), Pose: pose})
		}
		if s.recovery {
			s.recovery = false
			s.buffer(s.recoveryPacketLocked())
		}
	}
}

func (s *Session) recoveryPacketLocked() packet.Recovery {
	st := s.state.Status()
	return packet.Recovery{
		StartLevel: s.state.StartLevel(),
		Current:    s.state.CurrentType(),
		Next:       s.state.Next(),
		Board:      s.state.IsolatedBoard(),
		Score:      min(st.Score, packet.MaxScore),
		Level:      st.Level,
		Lines:      st.Lines,
		Countdown:  s.countdown,
	}
}

func (s *Session) endGameLocked(reason string) {
	s.buffer(packet.End{})
	st := s.state.Status()
	s.logger.Info("game ended",
		"reason", reason,
		"score", st.Score,
		"lines", st.Lines,
		"level", st.Level,
		"frames", s.state.Frame(),
	)
}

func (s *Session) dataLocked() display.Data {
	if s.state == nil {
		d := display.Empty()
		d.Level = s.opts.StartLevel
		d.Countdown = s.countdown
		return d
	}
	st := s.state.Status()
	return display.Data{
		Board:      s.state.DisplayBoard(),
		Next:       s.state.Next(),
		Level:      st.Level,
		Lines:      st.Lines,
		Score:      st.DisplayScore(s.opts.Config.MaxoutCapped),
		TetrisRate: st.TetrisRate(),
		Drought:    st.Drought(),
		Countdown:  s.countdown,
	}
}

func (s *Session) publishLocked() {
	s.publisher.Publish(s.dataLocked())
}

func (s *Session) buffer(p packet.Packet) {
	if s.opts.Buffer == nil {
		return
	}
	if err := s.opts.Buffer.BufferPacket(p); err != nil {
		s.logger.Error("cannot buffer packet", "packet", p.Opcode(), "error", err)
	}
}

func (s *Session) flushLocked() {
	if s.opts.Buffer == nil {
		return
	}
	if err := s.opts.Buffer.SendBufferedPackets(); err != nil {
		s.logger.Warn("cannot send packets", "error", err)
	}
}
