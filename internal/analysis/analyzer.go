// Package analysis rates each placement of a live game against an external
// move-evaluation oracle.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// ErrOutOfOrder is returned when positions and placements do not alternate.
var ErrOutOfOrder = errors.New("analysis: call out of order")

// Position is a board waiting for the current piece to be placed.
type Position struct {
	Board   *tetris.Board
	Current tetris.TetrominoType
	Next    tetris.TetrominoType
	Level   int
	Lines   int
}

// Copy returns a position with its own board.
func (p Position) Copy() Position {
	if p.Board != nil {
		p.Board = p.Board.Copy()
	}
	return p
}

// RatedMove is one candidate placement and its evaluation.
type RatedMove struct {
	Placement tetris.MoveableTetromino
	Eval      float64
}

// Evaluation is the oracle's ranked move list for a position, best first.
type Evaluation struct {
	Moves []RatedMove
}

// Best returns the top move.
func (e Evaluation) Best() (RatedMove, bool) {
	if len(e.Moves) == 0 {
		return RatedMove{}, false
	}
	return e.Moves[0], true
}

// Find returns the move that occupies the same cells as mt.
func (e Evaluation) Find(mt tetris.MoveableTetromino) (RatedMove, bool) {
	for _, m := range e.Moves {
		if m.Placement.Equals(mt) {
			return m, true
		}
	}
	return RatedMove{}, false
}

// Oracle evaluates positions.
type Oracle interface {
	// Evaluate ranks the best moves for pos.
	Evaluate(ctx context.Context, pos Position) (Evaluation, error)
	// RatePlacement evaluates one specific placement on pos.
	RatePlacement(ctx context.Context, pos Position, placement tetris.MoveableTetromino) (float64, error)
}

// Mode is which call the analyzer expects next.
type Mode int

const (
	ModeAwaitingPosition Mode = iota
	ModeAwaitingPlacement
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeAwaitingPosition:
		return "awaiting position"
	case ModeAwaitingPlacement:
		return "awaiting placement"
	default:
		return "unknown"
	}
}

// Score is the rating of one placement.
type Score struct {
	Index     int
	Placement tetris.MoveableTetromino
	BestEval  float64
	Eval      float64
	Score     float64
	Rating    Rating
	// FastPath is true when the placement was found in the precomputed
	// move list and no second request was needed.
	FastPath bool
}

// Options configures a LiveGameAnalyzer.
type Options struct {
	Oracle Oracle
	// Timeout bounds each oracle request; 0 means no timeout.
	Timeout    time.Duration
	Difficulty float64
	Logger     *log.Logger
	// OnScore is called from the worker goroutine for each rated placement.
	OnScore func(Score)
}

type evalResult struct {
	eval Evaluation
	err  error
}

// pendingPosition is a position whose evaluation is in flight.
type pendingPosition struct {
	pos    Position
	result chan evalResult
}

type job struct {
	index     int
	position  *pendingPosition
	placement tetris.MoveableTetromino
}

// LiveGameAnalyzer rates placements while the game is played. Evaluating a
// position starts as soon as it is known, so the result is usually ready by
// the time the player places the piece. Scoring runs on a single worker
// goroutine in placement order; an oracle failure skips that placement.
type LiveGameAnalyzer struct {
	oracle     Oracle
	timeout    time.Duration
	difficulty float64
	logger     *log.Logger
	onScore    func(Score)

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	quit   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	mode    Mode
	pending *pendingPosition
	index   int
	closed  bool
	scores  []Score
	skipped int
}

// NewLiveGameAnalyzer starts an analyzer. Close must be called to stop its
// worker.
func NewLiveGameAnalyzer(opts Options) *LiveGameAnalyzer {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "analysis",
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &LiveGameAnalyzer{
		oracle:     opts.Oracle,
		timeout:    opts.Timeout,
		difficulty: opts.Difficulty,
		logger:     logger,
		onScore:    opts.OnScore,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(chan job, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go a.worker()
	return a
}

// Mode returns which call is expected next.
func (a *LiveGameAnalyzer) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// OnNewPosition records the position the next placement is made from and
// starts evaluating it.
func (a *LiveGameAnalyzer) OnNewPosition(pos Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("analysis: analyzer is closed")
	}
	if a.mode != ModeAwaitingPosition {
		return fmt.Errorf("%w: position received while %s", ErrOutOfOrder, a.mode)
	}

	p := &pendingPosition{pos: pos.Copy(), result: make(chan evalResult, 1)}
	go func() {
		ctx, cancel := a.requestContext()
		defer cancel()
		ev, err := a.oracle.Evaluate(ctx, p.pos)
		p.result <- evalResult{eval: ev, err: err}
	}()

	a.pending = p
	a.mode = ModeAwaitingPlacement
	return nil
}

// OnPlacement records where the piece of the last position was placed and
// queues it for rating.
func (a *LiveGameAnalyzer) OnPlacement(mt tetris.MoveableTetromino) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("analysis: analyzer is closed")
	}
	if a.mode != ModeAwaitingPlacement {
		a.mu.Unlock()
		return fmt.Errorf("%w: placement received while %s", ErrOutOfOrder, a.mode)
	}
	j := job{index: a.index, position: a.pending, placement: mt}
	a.index++
	a.pending = nil
	a.mode = ModeAwaitingPosition
	a.mu.Unlock()

	select {
	case a.jobs <- j:
	case <-a.quit:
	}
	return nil
}

// Scores returns the rated placements so far, in placement order.
func (a *LiveGameAnalyzer) Scores() []Score {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Score(nil), a.scores...)
}

// Skipped returns how many placements could not be rated.
func (a *LiveGameAnalyzer) Skipped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped
}

// Accuracy returns the mean placement score in percent. ok is false before
// the first rated placement.
func (a *LiveGameAnalyzer) Accuracy() (accuracy float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.scores) == 0 {
		return 0, false
	}
	total := 0.0
	for _, s := range a.scores {
		total += s.Score
	}
	return 100 * total / float64(len(a.scores)), true
}

// Close waits for queued placements to be rated and stops the worker.
func (a *LiveGameAnalyzer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.quit)
	<-a.done
	a.cancel()
}

func (a *LiveGameAnalyzer) requestContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(a.ctx, a.timeout)
	}
	return context.WithCancel(a.ctx)
}

func (a *LiveGameAnalyzer) worker() {
	defer close(a.done)
	for {
		select {
		case j := <-a.jobs:
			a.process(j)
		case <-a.quit:
			// Drain what was queued before Close.
			for {
				select {
				case j := <-a.jobs:
					a.process(j)
				default:
					return
				}
			}
		}
	}
}

func (a *LiveGameAnalyzer) process(j job) {
	score, err := a.rate(j)
	if err != nil {
		a.logger.Warn("placement not rated", "placement", j.index, "error", err)
		a.mu.Lock()
		a.skipped++
		a.mu.Unlock()
		return
	}
	a.logger.Debug("placement rated", "placement", j.index, "move", score.Placement.TetrisNotation(),
		"score", score.Score, "rating", score.Rating)
	a.mu.Lock()
	a.scores = append(a.scores, score)
	a.mu.Unlock()
	if a.onScore != nil {
		a.onScore(score)
	}
}

func (a *LiveGameAnalyzer) rate(j job) (Score, error) {
	var res evalResult
	select {
	case res = <-j.position.result:
	case <-a.ctx.Done():
		return Score{}, a.ctx.Err()
	}
	if res.err != nil {
		return Score{}, fmt.Errorf("evaluate position: %w", res.err)
	}
	best, ok := res.eval.Best()
	if !ok {
		return Score{}, errors.New("oracle returned no moves")
	}

	s := Score{Index: j.index, Placement: j.placement, BestEval: best.Eval}
	if m, ok := res.eval.Find(j.placement); ok {
		s.Eval, s.FastPath = m.Eval, true
	} else {
		ctx, cancel := a.requestContext()
		defer cancel()
		ev, err := a.oracle.RatePlacement(ctx, j.position.pos, j.placement)
		if err != nil {
			return Score{}, fmt.Errorf("rate placement: %w", err)
		}
		s.Eval = ev
	}
	s.Score = PlacementScore(s.BestEval, s.Eval, a.difficulty)
	s.Rating = PlacementRating(s.Score)
	return s, nil
}
