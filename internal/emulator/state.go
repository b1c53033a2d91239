// Package emulator implements a deterministic 60fps NES Tetris simulation
// driven by one controller snapshot per frame, and a session that runs it
// in real time while emitting packets and display data.
package emulator

import (
	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// FrameResult describes what happened during one frame.
type FrameResult struct {
	// Locked is set on the frame the active piece locked.
	Locked *tetris.MoveableTetromino
	// PushdownPoints awarded when the piece locked.
	PushdownPoints int
	// Spawned is true when a new piece appeared this frame.
	Spawned bool
	// LinesCleared on the frame the cleared rows were removed.
	LinesCleared int
	// ToppedOut is true on the frame the game ended.
	ToppedOut bool
}

// GameState is the full state of one emulated game. It is mutated only by
// ExecuteFrame and must be driven from a single goroutine.
type GameState struct {
	cfg        config.EmulatorConfig
	gen        PieceGenerator
	startLevel int

	isolated  *tetris.Board // board without the active piece
	status    *tetris.MemoryGameStatus
	active    tetris.MoveableTetromino
	hasActive bool
	next      tetris.TetrominoType
	keys      *core.KeyState

	initialSpawnDelay int
	toppedOut         bool
	das               int
	gravity           int
	gravityCounter    int
	lockCounter       int
	lineClearCounter  int
	pushdownRows      int
	lockedType        tetris.TetrominoType
	pendingPlacement  bool
	frame             int
}

// NewGameState starts a game on startLevel. The first piece spawns
// immediately so that the start of the game can announce both the current
// and next piece.
func NewGameState(cfg config.EmulatorConfig, startLevel int, gen PieceGenerator) *GameState {
	s := &GameState{
		cfg:               cfg,
		gen:               gen,
		startLevel:        startLevel,
		isolated:          tetris.NewBoard(),
		status:            tetris.NewMemoryGameStatus(startLevel),
		keys:              core.NewKeyState(),
		initialSpawnDelay: cfg.InitialSpawnDelay,
		gravity:           tetris.Gravity(startLevel),
	}
	s.next = gen.Next()
	s.spawn()
	return s
}

// StartLevel returns the level the game started on.
func (s *GameState) StartLevel() int { return s.startLevel }

// Frame returns the number of frames executed.
func (s *GameState) Frame() int { return s.frame }

// Status returns the live score, level and lines.
func (s *GameState) Status() *tetris.MemoryGameStatus { return s.status }

// Next returns the piece in the next box.
func (s *GameState) Next() tetris.TetrominoType { return s.next }

// Active returns the falling piece, if any.
func (s *GameState) Active() (tetris.MoveableTetromino, bool) {
	return s.active, s.hasActive
}

// CurrentType returns the type of the falling piece, or TypeError during
// the lock delay.
func (s *GameState) CurrentType() tetris.TetrominoType {
	if !s.hasActive {
		return tetris.TypeError
	}
	return s.active.Type
}

// IsolatedBoard returns a copy of the board without the active piece.
func (s *GameState) IsolatedBoard() *tetris.Board { return s.isolated.Copy() }

// DisplayBoard returns the board with the active piece drawn on it.
func (s *GameState) DisplayBoard() *tetris.Board {
	b := s.isolated.Copy()
	if s.hasActive {
		s.active.BlitToBoard(b)
	}
	return b
}

// ToppedOut reports whether the game is over. Once true, ExecuteFrame does
// nothing.
func (s *GameState) ToppedOut() bool { return s.toppedOut }

// DAS returns the current DAS charge.
func (s *GameState) DAS() int { return s.das }

// Copy returns a deep copy that shares the piece generator.
func (s *GameState) Copy() *GameState {
	c := *s
	c.isolated = s.isolated.Copy()
	status := *s.status
	c.status = &status
	keys := *s.keys
	c.keys = &keys
	return &c
}

// ExecuteFrame advances the game by one frame with the given controller state.
func (s *GameState) ExecuteFrame(held core.InputFrame) FrameResult {
	var res FrameResult
	if s.toppedOut {
		return res
	}
	s.frame++
	s.keys.Tick(held)

	if !s.hasActive {
		// Lock delay, then the line clear animation, then the next spawn.
		switch {
		case s.lockCounter > 0:
			s.lockCounter--
			if s.lockCounter > 0 || s.lineClearCounter > 0 {
				return res
			}
		case s.lineClearCounter > 0:
			s.lineClearCounter--
			if s.lineClearCounter > 0 {
				return res
			}
		}

		res.LinesCleared = s.finishPlacement()
		s.spawn()
		if s.toppedOut {
			res.ToppedOut = true
			return res
		}
		res.Spawned = true
	}

	s.handleTranslate()
	s.handleRotate()

	if s.initialSpawnDelay > 0 {
		// The first piece hangs for a few frames before gravity starts.
		s.initialSpawnDelay--
		return res
	}

	pushdown := s.keys.IsPressed(core.ActionPushdown)
	if !pushdown {
		s.pushdownRows = 0
	}
	if s.gravityCounter == 0 {
		s.drop(pushdown, &res)
	}

	g := s.gravity
	if pushdown {
		g = min(2, g)
	}
	s.gravityCounter = (s.gravityCounter + 1) % g

	return res
}

// finishPlacement removes the cleared rows of the last lock and applies the
// score and gravity changes.
func (s *GameState) finishPlacement() int {
	if !s.pendingPlacement {
		return 0
	}
	s.pendingPlacement = false
	cleared := s.isolated.ProcessLineClears()
	if cleared > 0 {
		s.status.OnLineClear(cleared)
		s.gravity = tetris.Gravity(s.status.Level)
	}
	s.status.OnPlacement(s.lockedType)
	return cleared
}

// spawn moves the next piece into play. A spawn that overlaps the stack tops
// the game out and leaves the piece drawn on the board.
func (s *GameState) spawn() {
	// Not 0: gravity is not applied on the spawn frame.
	s.gravityCounter = 1
	s.pushdownRows = 0
	s.active = tetris.FromSpawnPose(s.next)
	s.hasActive = true
	s.next = s.gen.Next()

	if s.active.IntersectsBoard(s.isolated) {
		s.toppedOut = true
		s.active.BlitToBoard(s.isolated)
		s.hasActive = false
	}
}

// attemptMove rotates by dr and shifts by dx, keeping the move only if legal.
func (s *GameState) attemptMove(dr, dx int) bool {
	if !s.hasActive {
		return false
	}
	moved := s.active.MoveBy(dr, dx, 0)
	if !moved.Fits(s.isolated) {
		return false
	}
	s.active = moved
	return true
}

func (s *GameState) handleTranslate() {
	switch {
	case s.keys.IsJustPressed(core.ActionShiftLeft):
		// A blocked tap charges DAS fully against the wall.
		s.das = s.dasAfter(s.attemptMove(0, -1), 0)
	case s.keys.IsJustPressed(core.ActionShiftRight):
		s.das = s.dasAfter(s.attemptMove(0, 1), 0)
	default:
		left := s.keys.IsPressed(core.ActionShiftLeft)
		right := s.keys.IsPressed(core.ActionShiftRight)
		if !left && !right {
			return
		}
		s.das++
		if s.das >= s.cfg.MaxDAS {
			dx := 1
			if left {
				dx = -1
			}
			s.das = s.dasAfter(s.attemptMove(0, dx), s.cfg.ResetDAS)
		}
	}
}

func (s *GameState) dasAfter(moved bool, reset int) int {
	if moved {
		return reset
	}
	return s.cfg.MaxDAS
}

func (s *GameState) handleRotate() {
	switch {
	case s.keys.IsJustPressed(core.ActionRotateLeft):
		s.attemptMove(-1, 0)
	case s.keys.IsJustPressed(core.ActionRotateRight):
		s.attemptMove(1, 0)
	}
}

// drop moves the active piece down one row, or locks it when it cannot move.
func (s *GameState) drop(pushdown bool, res *FrameResult) {
	if !s.hasActive {
		return
	}
	moved := s.active.MoveBy(0, 0, 1)
	if moved.Fits(s.isolated) {
		s.active = moved
		if pushdown {
			s.pushdownRows++
		}
		return
	}

	locked := s.active
	locked.BlitToBoard(s.isolated)
	s.hasActive = false
	s.lockedType = locked.Type
	s.pendingPlacement = true
	s.lockCounter = tetris.LockDelay(locked.LowestY())
	if s.isolated.FullRows() > 0 {
		s.lineClearCounter = s.cfg.LineClearDelay
	}

	if s.pushdownRows > 0 {
		res.PushdownPoints = tetris.PushdownPoints(s.status.Score, s.pushdownRows)
		s.status.OnPushdown(res.PushdownPoints)
		s.pushdownRows = 0
	}
	res.Locked = &locked
}
