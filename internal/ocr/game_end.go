package ocr

import "time"

// endGame ends the tracked game on the frame that decided it, so the end
// packet goes out with that frame.
func endGame(e *env, reason string) {
	if e.global.Game() == nil {
		return
	}
	e.global.EndGame()
	e.logger.Info("game ended", "reason", reason)
}

func newGameEndState(e *env) State {
	s := &baseState{id: StateGameEnd, env: e}
	s.register(&gameRestartEvent{env: e})
	return s
}

// gameRestartEvent returns to waiting for a game when more than one game
// per session is allowed. Otherwise game end is final.
type gameRestartEvent struct{ env *env }

func (*gameRestartEvent) Name() string { return "game-restart" }

func (*gameRestartEvent) Persistence() Persistence { return SingleFrame() }

func (e *gameRestartEvent) Precondition(FrameFeatures) bool { return e.env.cfg.MultipleGames }

func (*gameRestartEvent) Trigger(FrameFeatures, time.Time) StateID { return StateBeforeGame }
