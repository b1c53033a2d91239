package ocr

import "time"

// startRowSlack is how far below the spawn row a lone piece may be for the
// frame to count as a game start.
const startRowSlack = 4

func newBeforeGameState(e *env) State {
	s := &baseState{id: StateBeforeGame, env: e}
	s.register(&startGameEvent{env: e})
	return s
}

// readyToStart reports whether f looks like the first frames of a game:
// a clean picture, a readable next box and level, and nothing on the board
// but one piece near the top.
func readyToStart(e *env, f FrameFeatures) bool {
	if f.Noise() > e.noiseThreshold {
		return false
	}
	if !f.NextType().Valid() || f.Level() < 0 {
		return false
	}
	mt, ok := f.BoardOnlyTetromino()
	return ok && mt.HighestY() <= startRowSlack
}

func startFromFrame(e *env, f FrameFeatures, now time.Time) {
	mt, _ := f.BoardOnlyTetromino()
	g := e.global.StartGame(f.Level(), mt.Type, f.NextType(), now)
	e.logger.Info("game started", "level", g.StartLevel(), "current", mt.Type, "next", f.NextType())
}

type startGameEvent struct{ env *env }

func (*startGameEvent) Name() string { return "start-game" }

func (e *startGameEvent) Persistence() Persistence {
	return Consecutive(e.env.cfg.StartFrames)
}

func (e *startGameEvent) Precondition(f FrameFeatures) bool { return readyToStart(e.env, f) }

func (e *startGameEvent) Trigger(f FrameFeatures, now time.Time) StateID {
	startFromFrame(e.env, f, now)
	return StatePieceDropping
}

// restartGameEvent detects a console reset to a new game while the old one
// is still tracked or in limbo.
type restartGameEvent struct{ env *env }

func (*restartGameEvent) Name() string { return "restart-game" }

func (e *restartGameEvent) Persistence() Persistence {
	return Consecutive(e.env.cfg.StartFrames)
}

func (e *restartGameEvent) Precondition(f FrameFeatures) bool {
	g := e.env.global.Game()
	if g == nil || g.Placements() == 0 {
		return false
	}
	// A perfect clear leaves a lone piece at the top of the old game too,
	// but only a new game shows a zero score.
	if f.Score() > 0 {
		return false
	}
	return readyToStart(e.env, f)
}

func (e *restartGameEvent) Trigger(f FrameFeatures, now time.Time) StateID {
	e.env.global.EndGame()
	startFromFrame(e.env, f, now)
	return StatePieceDropping
}
