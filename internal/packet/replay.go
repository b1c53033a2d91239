package packet

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// ErrNotInGame is returned for a packet that needs a game in progress.
var ErrNotInGame = errors.New("packet: no game in progress")

// Replayer folds a packet stream back into game state. Outside a game it
// keeps showing the final state of the last game.
type Replayer struct {
	inGame    bool
	status    *tetris.MemoryGameStatus
	isolated  *tetris.Board // board without the active piece
	board     *tetris.Board // displayed board
	current   tetris.TetrominoType
	next      tetris.TetrominoType
	countdown int
	elapsed   time.Duration
}

// NewReplayer returns a replayer with no game in progress.
func NewReplayer() *Replayer {
	return &Replayer{
		status:   tetris.NewMemoryGameStatus(0),
		isolated: tetris.NewBoard(),
		board:    tetris.NewBoard(),
		current:  tetris.TypeError,
		next:     tetris.TypeError,
	}
}

// InGame reports whether a game is in progress.
func (r *Replayer) InGame() bool { return r.inGame }

// Status returns the running status of the current or last game.
func (r *Replayer) Status() *tetris.MemoryGameStatus { return r.status }

// Current returns the type of the active piece.
func (r *Replayer) Current() tetris.TetrominoType { return r.current }

// Next returns the type shown in the next box.
func (r *Replayer) Next() tetris.TetrominoType { return r.next }

// IsolatedBoard returns a copy of the board without the active piece.
func (r *Replayer) IsolatedBoard() *tetris.Board { return r.isolated.Copy() }

// Board returns a copy of the displayed board.
func (r *Replayer) Board() *tetris.Board { return r.board.Copy() }

// Elapsed returns the sum of all timed packet delays applied so far.
func (r *Replayer) Elapsed() time.Duration { return r.elapsed }

// Apply updates the state with one packet.
func (r *Replayer) Apply(p Packet) error {
	if t, ok := p.(Timed); ok {
		r.elapsed += time.Duration(t.Delay()) * time.Millisecond
	}

	switch p := p.(type) {
	case Start:
		r.inGame = true
		r.status = tetris.NewMemoryGameStatus(p.Level)
		r.isolated = tetris.NewBoard()
		r.board = tetris.NewBoard()
		r.current, r.next = p.Current, p.Next
		r.countdown = 0

	case End:
		if !r.inGame {
			return fmt.Errorf("%w: %s", ErrNotInGame, p.Opcode())
		}
		r.inGame = false

	case Placement:
		if !r.inGame {
			return nil
		}
		mt := tetris.FromPose(r.current, p.Pose)
		if !mt.IsValidPlacement(r.isolated) {
			return fmt.Errorf("packet: placement %s is not legal on the current board", mt)
		}
		mt.BlitToBoard(r.isolated)
		r.status.OnLineClear(r.isolated.ProcessLineClears())
		r.status.OnPushdown(p.Pushdown)
		r.status.OnPlacement(r.current)
		r.current, r.next = r.next, p.NextNext
		r.board = r.isolated.Copy()

	case FullBoard:
		if !r.inGame {
			return nil
		}
		r.board = p.Board.Copy()

	case AbbrBoard:
		if !r.inGame {
			return nil
		}
		mt := tetris.FromPose(r.current, p.Pose)
		if mt.IntersectsBoard(r.isolated) {
			return fmt.Errorf("packet: active piece %s overlaps the board", mt)
		}
		r.board = r.isolated.Copy()
		mt.BlitToBoard(r.board)

	case Recovery:
		r.inGame = true
		r.status = tetris.NewMemoryGameStatus(p.StartLevel)
		r.status.Level, r.status.Lines, r.status.Score = p.Level, p.Lines, p.Score
		r.isolated = p.Board.Copy()
		r.board = p.Board.Copy()
		r.current, r.next = p.Current, p.Next
		r.countdown = p.Countdown

	case FullState:
		if !r.inGame {
			return nil
		}
		r.board = p.Board.Copy()
		r.next = p.Next
		r.status.Level, r.status.Lines, r.status.Score = p.Level, p.Lines, p.Score

	case Countdown:
		r.countdown = p.Value
	}
	return nil
}

// Data returns the display data for the current state.
func (r *Replayer) Data() display.Data {
	return display.Data{
		Board:      r.board.Copy(),
		Next:       r.next,
		Level:      r.status.Level,
		Lines:      r.status.Lines,
		Score:      r.status.Score,
		TetrisRate: r.status.TetrisRate(),
		Drought:    r.status.Drought(),
		Countdown:  r.countdown,
	}
}

// ReplayStream decodes an assembled stream and applies every packet, calling
// fn after each one. fn may be nil.
func (r *Replayer) ReplayStream(stream []byte, fn func(Packet, display.Data)) error {
	_, packets, err := Disassemble(stream, false)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := r.Apply(p); err != nil {
			return err
		}
		if fn != nil {
			fn(p, r.Data())
		}
	}
	return nil
}
