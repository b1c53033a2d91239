package ocr

import (
	"time"

	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

const (
	// recoveryScoreCheck is the predicted score above which the score box is
	// no longer trusted during recovery; past a maxout the display may wrap.
	recoveryScoreCheck = 950000
	// maxLinesPerUpdate bounds how many lines the prediction accepts at once.
	maxLinesPerUpdate = 4
)

// gameLimboState keeps a prediction of level, lines and score while the
// picture cannot be tracked, reports it with every frame, and waits to
// recover, restart or give up.
type gameLimboState struct {
	baseState

	predicted   tetris.SmartGameStatus
	next        tetris.TetrominoType
	sinceUpdate int
}

func newGameLimboState(e *env) State {
	s := &gameLimboState{baseState: baseState{id: StateGameLimbo, env: e}, next: tetris.TypeError}
	if g := e.global.Game(); g != nil {
		s.predicted = g.Status()
		s.next = g.NextType()
	}
	s.onFrame = s.report
	s.register(&restartGameEvent{env: e})
	s.register(&recoveryEvent{state: s})
	s.register(&limboExitEvent{env: e})
	s.register(&limboTimeoutEvent{env: e})
	return s
}

// report sends the raw board with the predicted counters. The digit boxes
// are read every few frames only, and not at all when the score is capped.
func (s *gameLimboState) report(f FrameFeatures, now time.Time) {
	g := s.env.global.Game()
	if g == nil {
		return
	}
	s.sinceUpdate++
	if s.sinceUpdate >= max(1, s.env.cfg.LimboUpdateInterval) {
		s.sinceUpdate = 0
		if next := f.NextType(); next.Valid() {
			s.next = next
		}
		if !s.env.cfg.MaxoutCapped {
			s.predict(f)
		}
	}
	g.SetFullState(f.BinaryBoard(), s.next, s.predicted, now)
}

// predict moves the prediction toward what the digit boxes show, only
// accepting changes a real game could have made since the last update.
func (s *gameLimboState) predict(f FrameFeatures) {
	p := &s.predicted
	if lines := f.Lines(); lines > p.Lines && lines <= p.Lines+maxLinesPerUpdate {
		p.OnLineClear(lines - p.Lines)
	}
	if level := f.Level(); level == p.Level+1 {
		p.Level = level
	}
	gain := tetris.LineClearPoints(maxLinesPerUpdate, p.Level+1) + s.env.cfg.PushdownLimit
	if score := f.Score(); score > p.Score && score <= p.Score+gain {
		p.Score = score
	}
}

// Predicted returns the current prediction.
func (s *gameLimboState) Predicted() tetris.SmartGameStatus { return s.predicted }

// separation is a board split into a falling piece and the stack under it.
type separation struct {
	piece tetris.MoveableTetromino
	board *tetris.Board
}

// separateBoardAndPiece finds a tetromino that is not resting on the rest
// of the board. Components are tried top to bottom.
func separateBoardAndPiece(b *tetris.Board) (separation, bool) {
	for _, c := range b.ConnectedComponents() {
		mt, ok := tetris.ExtractFromBoard(c)
		if !ok {
			continue
		}
		rest := tetris.Subtract(b, c, true)
		if mt.IsValidPlacement(rest) {
			continue
		}
		return separation{piece: mt, board: rest}, true
	}
	return separation{}, false
}

// recoveryEvent resumes tracking once two consecutive frames show the same
// stack with one piece of the same type falling over it.
type recoveryEvent struct {
	state    *gameLimboState
	prev     *separation
	recovery packet.Recovery
}

func (*recoveryEvent) Name() string { return "recovery" }

func (*recoveryEvent) Persistence() Persistence { return SingleFrame() }

func (e *recoveryEvent) Precondition(f FrameFeatures) bool {
	g := e.state.env.global.Game()
	if g == nil {
		return false
	}
	sep, ok := separateBoardAndPiece(f.BinaryBoard())
	prev := e.prev
	e.prev = nil
	if !ok {
		return false
	}
	e.prev = &sep
	if prev == nil || prev.piece.Type != sep.piece.Type || prev.piece.Equals(sep.piece) {
		return false
	}
	if !prev.board.EqualsIgnoreColor(sep.board) {
		return false
	}
	next := f.NextType()
	if !next.Valid() {
		return false
	}

	status := e.state.predicted
	score := status.Score
	if status.Score < recoveryScoreCheck {
		ocrScore := f.Score()
		if ocrScore < status.Score {
			return false
		}
		score = ocrScore
	}
	e.recovery = packet.Recovery{
		StartLevel: g.StartLevel(),
		Current:    sep.piece.Type,
		Next:       next,
		Board:      sep.board,
		Score:      min(score, packet.MaxScore),
		Level:      status.Level,
		Lines:      status.Lines,
	}
	return true
}

func (e *recoveryEvent) Trigger(FrameFeatures, time.Time) StateID {
	e.state.env.global.Game().SetRecovery(e.recovery)
	e.state.env.logger.Info("tracking recovered", "current", e.recovery.Current,
		"level", e.recovery.Level, "lines", e.recovery.Lines, "score", e.recovery.Score)
	return StatePieceDropping
}

// limboExitEvent ends the game when the picture stays noisy, e.g. because
// the player left to a menu.
type limboExitEvent struct{ env *env }

func (*limboExitEvent) Name() string { return "limbo-exit" }

func (e *limboExitEvent) Persistence() Persistence {
	return Consecutive(e.env.cfg.LimboExitFrames)
}

func (e *limboExitEvent) Precondition(f FrameFeatures) bool {
	return f.Noise() > e.env.noiseThreshold
}

func (e *limboExitEvent) Trigger(FrameFeatures, time.Time) StateID {
	endGame(e.env, "left the game")
	return StateGameEnd
}

type limboTimeoutEvent struct{ env *env }

func (*limboTimeoutEvent) Name() string { return "limbo-timeout" }

func (e *limboTimeoutEvent) Persistence() Persistence {
	return Timed(e.env.cfg.LimboTimeout())
}

func (*limboTimeoutEvent) Precondition(FrameFeatures) bool { return true }

func (e *limboTimeoutEvent) Trigger(FrameFeatures, time.Time) StateID {
	endGame(e.env, "limbo timeout")
	return StateGameEnd
}
