package ocr

import (
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/analysis"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Analyzer is told about every position and placement of a tracked game.
// *analysis.LiveGameAnalyzer implements it.
type Analyzer interface {
	OnNewPosition(pos analysis.Position) error
	OnPlacement(mt tetris.MoveableTetromino) error
}

// GlobalOptions configures a GlobalState.
type GlobalOptions struct {
	// Buffer receives one packet per game event; nil disables packets.
	Buffer *packet.Buffer
	// AnalyzerFactory creates an analyzer for each new game; nil disables
	// analysis.
	AnalyzerFactory func(startLevel int) Analyzer
	MaxoutCapped    bool
	Logger          *log.Logger
}

// GlobalState is the state shared by every OCR state: the game being
// tracked, if any, and the final data of the last game.
type GlobalState struct {
	opts   GlobalOptions
	logger *log.Logger
	game   *GameTracker
	final  display.Data
	ended  bool
	games  int
}

// NewGlobalState creates a state with no game in progress.
func NewGlobalState(opts GlobalOptions) *GlobalState {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "ocr",
		})
	}
	return &GlobalState{opts: opts, logger: logger, final: display.Empty()}
}

// Game returns the game in progress, or nil.
func (g *GlobalState) Game() *GameTracker { return g.game }

// Games returns how many games were started.
func (g *GlobalState) Games() int { return g.games }

// StartGame begins tracking a game and emits its start packet.
func (g *GlobalState) StartGame(level int, current, next tetris.TetrominoType, now time.Time) *GameTracker {
	t := &GameTracker{
		startLevel: level,
		buffer:     g.opts.Buffer,
		replayer:   packet.NewReplayer(),
		delta:      packet.NewTimeDelta(now),
		capped:     g.opts.MaxoutCapped,
		logger:     g.logger,
	}
	t.emit(packet.Start{Level: level, Current: current, Next: next})
	if g.opts.AnalyzerFactory != nil {
		t.analyzer = g.opts.AnalyzerFactory(level)
		t.notifyPosition()
	}
	g.game = t
	g.games++
	return t
}

// EndGame emits the end packet and keeps the final display data as the
// game summary. It does nothing without a game in progress.
func (g *GlobalState) EndGame() {
	if g.game == nil {
		return
	}
	g.game.emit(packet.End{})
	g.final = g.game.DisplayData()
	g.ended = true
	closeAnalyzer(g.game.analyzer)
	g.game = nil
}

// Summary returns the final display data of the last ended game.
func (g *GlobalState) Summary() (display.Data, bool) {
	return g.final.Copy(), g.ended
}

// DisplayData returns what a front end should show: the live game, or the
// summary of the last one.
func (g *GlobalState) DisplayData() display.Data {
	if g.game != nil {
		return g.game.DisplayData()
	}
	return g.final.Copy()
}

// GameTracker is the state of one tracked game. It is rebuilt from the
// packets it emits, so it always agrees with what a replay will show.
type GameTracker struct {
	startLevel int
	buffer     *packet.Buffer
	replayer   *packet.Replayer
	delta      *packet.TimeDelta
	analyzer   Analyzer
	capped     bool
	logger     *log.Logger
}

// StartLevel returns the level the game started on.
func (t *GameTracker) StartLevel() int { return t.startLevel }

// StableBoard returns a copy of the board without the active piece.
func (t *GameTracker) StableBoard() *tetris.Board { return t.replayer.IsolatedBoard() }

// DisplayBoard returns a copy of the last reported board.
func (t *GameTracker) DisplayBoard() *tetris.Board { return t.replayer.Board() }

// CurrentType returns the type of the falling piece.
func (t *GameTracker) CurrentType() tetris.TetrominoType { return t.replayer.Current() }

// NextType returns the type in the next box.
func (t *GameTracker) NextType() tetris.TetrominoType { return t.replayer.Next() }

// Status returns a copy of the running level, lines and score.
func (t *GameTracker) Status() tetris.SmartGameStatus { return t.replayer.Status().SmartGameStatus }

// Placements returns the number of placements so far.
func (t *GameTracker) Placements() int { return t.replayer.Status().Placements() }

// PlacePiece locks mt on the stable board. next is the type now shown in
// the next box and pushdown the points awarded for soft drop.
func (t *GameTracker) PlacePiece(mt tetris.MoveableTetromino, next tetris.TetrominoType, pushdown int, now time.Time) {
	t.emit(packet.Placement{
		DelayMs:  t.delta.Delta(now),
		NextNext: next,
		Pose:     mt.Pose(),
		Pushdown: max(0, min(pushdown, packet.MaxPushdown)),
	})
	if t.analyzer != nil {
		if err := t.analyzer.OnPlacement(mt); err != nil {
			t.logger.Warn("analyzer rejected placement", "error", err)
		}
		t.notifyPosition()
	}
}

// SetFullBoard reports a frame where the active piece could not be
// isolated. Nothing is sent when the board did not change.
func (t *GameTracker) SetFullBoard(board *tetris.Board, now time.Time) bool {
	if t.replayer.Board().Equals(board) {
		return false
	}
	t.emit(packet.FullBoard{DelayMs: t.delta.Delta(now), Board: board.Copy()})
	return true
}

// SetAbbreviatedBoard reports the active piece on the stable board.
// Nothing is sent when the displayed board would not change.
func (t *GameTracker) SetAbbreviatedBoard(active tetris.MoveableTetromino, now time.Time) bool {
	b := t.replayer.IsolatedBoard()
	active.BlitToBoard(b)
	if t.replayer.Board().Equals(b) {
		return false
	}
	t.emit(packet.AbbrBoard{DelayMs: t.delta.Delta(now), Pose: active.Pose()})
	return true
}

// SetFullState reports a frame where nothing can be tracked, together with
// the counters predicted for it. The stable board is kept. Nothing is sent
// when nothing shown would change.
func (t *GameTracker) SetFullState(board *tetris.Board, next tetris.TetrominoType, st tetris.SmartGameStatus, now time.Time) bool {
	cur := t.replayer.Status()
	score := min(st.Score, packet.MaxScore)
	if t.replayer.Board().Equals(board) && t.replayer.Next() == next &&
		cur.Level == st.Level && cur.Lines == st.Lines && cur.Score == score {
		return false
	}
	t.emit(packet.FullState{
		DelayMs: t.delta.Delta(now),
		Board:   board.Copy(),
		Next:    next,
		Level:   st.Level,
		Lines:   st.Lines,
		Score:   score,
	})
	return true
}

// SetRecovery replaces the game state after tracking was lost. The analyzer
// is detached since the placements in between are unknown.
func (t *GameTracker) SetRecovery(r packet.Recovery) {
	t.emit(r)
	if t.analyzer != nil {
		closeAnalyzer(t.analyzer)
		t.analyzer = nil
		t.logger.Info("analysis stopped after recovery")
	}
}

// DisplayData returns the display data of the game.
func (t *GameTracker) DisplayData() display.Data {
	d := t.replayer.Data()
	d.Score = t.replayer.Status().DisplayScore(t.capped)
	return d
}

func (t *GameTracker) emit(p packet.Packet) {
	if err := t.replayer.Apply(p); err != nil {
		t.logger.Error("inconsistent packet", "packet", p.Opcode(), "error", err)
	}
	if t.buffer == nil {
		return
	}
	if err := t.buffer.BufferPacket(p); err != nil {
		t.logger.Error("cannot buffer packet", "packet", p.Opcode(), "error", err)
	}
}

// closeAnalyzer stops an analyzer without waiting for its pending oracle
// requests; frames keep flowing while they drain.
func closeAnalyzer(a Analyzer) {
	if c, ok := a.(interface{ Close() }); ok {
		go c.Close()
	}
}

func (t *GameTracker) notifyPosition() {
	st := t.replayer.Status()
	err := t.analyzer.OnNewPosition(analysis.Position{
		Board:   t.replayer.IsolatedBoard(),
		Current: t.replayer.Current(),
		Next:    t.replayer.Next(),
		Level:   st.Level,
		Lines:   st.Lines,
	})
	if err != nil {
		t.logger.Warn("analyzer rejected position", "error", err)
	}
}
