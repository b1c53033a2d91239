package ocr

import (
	"time"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

const (
	// minDropFrames is how long a piece must be tracked before a spawn can
	// end it.
	minDropFrames = 5
	// An interlaced capture can smear a spawned piece over up to six minos.
	minSpawnMinos = 4
	maxSpawnMinos = 6
)

type pieceDroppingState struct {
	baseState

	// active is the last piece isolated on any frame of this state.
	active *tetris.MoveableTetromino
	// visible reports whether the active piece was isolated on this frame.
	visible bool
}

func newPieceDroppingState(e *env) State {
	s := &pieceDroppingState{baseState: baseState{id: StatePieceDropping, env: e}}
	s.onFrame = s.trackActivePiece
	s.register(&restartGameEvent{env: e})
	s.register(&regularSpawnEvent{state: s})
	s.register(&lineClearSpawnEvent{state: s})
	s.register(&topoutEvent{state: s})
	s.register(&confusionEvent{state: s})
	return s
}

func (s *pieceDroppingState) trackActivePiece(f FrameFeatures, now time.Time) {
	g := s.env.global.Game()
	if g == nil {
		return
	}
	mt, ok := findActivePiece(f.BinaryBoard(), g)
	s.visible = ok
	if ok {
		s.active = &mt
		g.SetAbbreviatedBoard(mt, now)
		return
	}
	g.SetFullBoard(f.BinaryBoard(), now)
}

// findActivePiece isolates the falling piece: the board must hold the
// stable board plus exactly one piece of the current type.
func findActivePiece(board *tetris.Board, g *GameTracker) (tetris.MoveableTetromino, bool) {
	stable := g.StableBoard()
	if board.Count() != stable.Count()+4 {
		return tetris.MoveableTetromino{}, false
	}
	diff := tetris.Subtract(board, stable, true)
	if diff == nil {
		return tetris.MoveableTetromino{}, false
	}
	mt, ok := tetris.ExtractFromBoard(diff)
	if !ok || mt.Type != g.CurrentType() {
		return tetris.MoveableTetromino{}, false
	}
	return mt, true
}

// pushdownPoints estimates soft-drop points from the score shown on screen.
// expected is the score without pushdown; anything outside (0, limit) is
// treated as a misread.
func pushdownPoints(ocrScore, expected, limit int) int {
	if ocrScore < 0 || ocrScore <= expected || ocrScore >= expected+limit {
		return 0
	}
	return ocrScore - expected
}

func placeWithPushdown(e *env, g *GameTracker, f FrameFeatures, mt tetris.MoveableTetromino, lines int, now time.Time) {
	expected := g.Status()
	expected.OnLineClear(lines)
	pushdown := pushdownPoints(f.Score(), expected.Score, e.cfg.PushdownLimit)
	g.PlacePiece(mt, f.NextType(), pushdown, now)
	e.logger.Debug("piece placed", "piece", mt, "lines", lines, "pushdown", pushdown)
}

// regularSpawnEvent fires when a new piece appears above the previous one
// after a placement without line clears.
type regularSpawnEvent struct {
	state     *pieceDroppingState
	placement tetris.MoveableTetromino
}

func (*regularSpawnEvent) Name() string { return "regular-spawn" }

func (e *regularSpawnEvent) Persistence() Persistence {
	return Consecutive(e.state.env.cfg.SpawnFrames)
}

func (e *regularSpawnEvent) Precondition(f FrameFeatures) bool {
	g := e.state.env.global.Game()
	if g == nil || e.state.frames < minDropFrames || !f.NextType().Valid() {
		return false
	}
	board, stable := f.BinaryBoard(), g.StableBoard()
	if board.Count() < stable.Count()+8 {
		return false
	}
	diff := tetris.Subtract(board, stable, true)
	if diff == nil {
		return false
	}
	components := diff.ConnectedComponents()
	if len(components) != 2 {
		return false
	}
	found := 0
	for _, c := range components {
		mt, ok := tetris.ExtractFromBoard(c)
		if ok && mt.Type == g.CurrentType() && mt.IsValidPlacement(stable) {
			e.placement = mt
			found++
		}
	}
	return found == 1
}

func (e *regularSpawnEvent) Trigger(f FrameFeatures, now time.Time) StateID {
	g := e.state.env.global.Game()
	placeWithPushdown(e.state.env, g, f, e.placement, 0, now)
	return StatePieceDropping
}

// lineClearSpawnEvent fires when a new piece appears after the previous
// piece cleared lines. The cleared board is rebuilt by dropping the last
// tracked piece to rest and must match what is on screen.
type lineClearSpawnEvent struct {
	state     *pieceDroppingState
	placement tetris.MoveableTetromino
	lines     int
}

func (*lineClearSpawnEvent) Name() string { return "line-clear-spawn" }

func (e *lineClearSpawnEvent) Persistence() Persistence {
	return Consecutive(e.state.env.cfg.SpawnFrames)
}

func (e *lineClearSpawnEvent) Precondition(f FrameFeatures) bool {
	g := e.state.env.global.Game()
	prev := e.state.active
	if g == nil || prev == nil || e.state.frames < minDropFrames || !f.NextType().Valid() {
		return false
	}
	board, stable := f.BinaryBoard(), g.StableBoard()
	if board.Count() > stable.Count() {
		return false
	}

	// The topmost component is the spawned piece.
	components := board.ConnectedComponents()
	if len(components) == 0 {
		return false
	}
	spawned := components[0]
	if n := spawned.Count(); n < minSpawnMinos || n > maxSpawnMinos {
		return false
	}
	remainder := tetris.Subtract(board, spawned, true)
	if remainder == nil {
		return false
	}

	placed, ok := dropToRest(*prev, stable)
	if !ok {
		return false
	}
	after := stable.Copy()
	placed.BlitToBoard(after)
	lines := after.ProcessLineClears()
	if lines == 0 || !after.EqualsIgnoreColor(remainder) {
		return false
	}
	e.placement, e.lines = placed, lines
	return true
}

func (e *lineClearSpawnEvent) Trigger(f FrameFeatures, now time.Time) StateID {
	g := e.state.env.global.Game()
	placeWithPushdown(e.state.env, g, f, e.placement, e.lines, now)
	return StatePieceDropping
}

// dropToRest moves mt down until it rests on b.
func dropToRest(mt tetris.MoveableTetromino, b *tetris.Board) (tetris.MoveableTetromino, bool) {
	if !mt.IsLegal(b) {
		return mt, false
	}
	for {
		below := mt.MoveBy(0, 0, 1)
		if !below.IsLegal(b) {
			return mt, true
		}
		mt = below
	}
}

// topoutEvent fires when the stack reaches the spawn area: no piece is
// falling and some piece's spawn cells are filled.
type topoutEvent struct{ state *pieceDroppingState }

func (*topoutEvent) Name() string { return "topout" }

func (e *topoutEvent) Persistence() Persistence {
	return Timed(e.state.env.cfg.TopoutWindow())
}

func (e *topoutEvent) Precondition(f FrameFeatures) bool {
	if e.state.visible {
		return false
	}
	board := f.BinaryBoard()
	for _, t := range tetris.AllTypes {
		if spawnFilled(board, t) {
			return true
		}
	}
	return false
}

func spawnFilled(b *tetris.Board, t tetris.TetrominoType) bool {
	for _, p := range tetris.FromSpawnPose(t).Cells() {
		if !tetris.InBounds(p.X, p.Y) || !b.Exists(p.X, p.Y) {
			return false
		}
	}
	return true
}

func (e *topoutEvent) Trigger(FrameFeatures, time.Time) StateID {
	endGame(e.state.env, "topout")
	return StateGameEnd
}

// confusionEvent gives up on tracking when no piece could be isolated for
// too long.
type confusionEvent struct{ state *pieceDroppingState }

func (*confusionEvent) Name() string { return "confusion" }

func (e *confusionEvent) Persistence() Persistence {
	return Timed(e.state.env.cfg.ConfusionWindow())
}

func (e *confusionEvent) Precondition(FrameFeatures) bool { return !e.state.visible }

func (*confusionEvent) Trigger(FrameFeatures, time.Time) StateID { return StateGameLimbo }
