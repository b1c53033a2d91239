// Package packet implements the bit-packed game event stream: one packet per
// discrete game event (start, countdown, placement, board update, full state,
// recovery, end), buffered and sent in causal order, fanned out to live viewers and
// folded back into game state by a replayer.
package packet

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

var (
	// ErrShortPacket is returned when a stream ends inside a packet.
	ErrShortPacket = errors.New("packet: stream too short")
	// ErrUnknownOpcode is returned for an opcode with no packet schema.
	ErrUnknownOpcode = errors.New("packet: unknown opcode")
)

// Opcode identifies a packet schema.
type Opcode uint8

const (
	OpLast      Opcode = 0 // terminates a stream
	OpStart     Opcode = 2
	OpEnd       Opcode = 3
	OpPlacement Opcode = 4
	OpFullBoard Opcode = 5 // board where the active piece cannot be inferred
	OpAbbrBoard Opcode = 6 // active piece pose only
	OpRecovery  Opcode = 7 // everything needed to resume a game
	OpFullState Opcode = 8 // board and counters while tracking is lost
	OpCountdown Opcode = 9 // 0 means not counting down
)

// OpcodeBits is the width of the opcode header.
const OpcodeBits = 4

// Field widths.
const (
	deltaBits     = 12
	typeBits      = 3
	levelBits     = 8
	poseBits      = 11
	pushdownBits  = 4
	boardBits     = tetris.Width * tetris.Height * 2
	scoreBits     = 26
	linesBits     = 16
	countdownBits = 4
)

// MaxDelay is the largest delay a timed packet can carry, in milliseconds.
const MaxDelay = 1<<deltaBits - 1

// MaxPushdown is the largest pushdown a placement packet can carry.
const MaxPushdown = 1<<pushdownBits - 1

// MaxScore is the largest score a recovery packet can carry.
const MaxScore = 1<<scoreBits - 1

// contentBits is the content length of each opcode, excluding the header.
var contentBits = map[Opcode]int{
	OpLast:      0,
	OpStart:     levelBits + 2*typeBits,
	OpEnd:       0,
	OpPlacement: deltaBits + typeBits + poseBits + pushdownBits,
	OpFullBoard: deltaBits + boardBits,
	OpAbbrBoard: deltaBits + poseBits,
	OpRecovery:  levelBits + 2*typeBits + boardBits + scoreBits + levelBits + linesBits + countdownBits,
	OpFullState: deltaBits + boardBits + typeBits + levelBits + linesBits + scoreBits,
	OpCountdown: deltaBits + countdownBits,
}

// ContentBits returns the content length of op in bits.
func ContentBits(op Opcode) (int, bool) {
	n, ok := contentBits[op]
	return n, ok
}

// String returns the protocol name of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpLast:
		return "LAST"
	case OpStart:
		return "GAME_START"
	case OpEnd:
		return "GAME_END"
	case OpPlacement:
		return "GAME_PLACEMENT"
	case OpFullBoard:
		return "GAME_FULL_BOARD"
	case OpAbbrBoard:
		return "GAME_ABBR_BOARD"
	case OpRecovery:
		return "GAME_RECOVERY"
	case OpFullState:
		return "GAME_FULL_STATE"
	case OpCountdown:
		return "GAME_COUNTDOWN"
	default:
		return fmt.Sprintf("OPCODE_%d", uint8(op))
	}
}

// Packet is one game event. The set of implementations is closed.
type Packet interface {
	Opcode() Opcode
	encodeContent(w *BitWriter) error
}

// Timed is implemented by packets that are replayed a delay after the
// previous timed packet.
type Timed interface {
	Packet
	Delay() int
}

// Start begins a game.
type Start struct {
	Level   int
	Current tetris.TetrominoType
	Next    tetris.TetrominoType
}

// End ends the current game.
type End struct{}

// Placement locks the current piece at Pose. NextNext is the piece that
// appears in the next box once the new piece spawns.
type Placement struct {
	DelayMs  int
	NextNext tetris.TetrominoType
	Pose     tetris.Pose
	Pushdown int
}

// FullBoard replaces the displayed board.
type FullBoard struct {
	DelayMs int
	Board   *tetris.Board
}

// AbbrBoard moves the active piece on the stable board.
type AbbrBoard struct {
	DelayMs int
	Pose    tetris.Pose
}

// Recovery carries the complete state of a game in progress.
type Recovery struct {
	StartLevel int
	Current    tetris.TetrominoType
	Next       tetris.TetrominoType
	Board      *tetris.Board
	Score      int
	Level      int
	Lines      int
	Countdown  int
}

// FullState replaces the displayed board and the counters without touching
// the stable board, for frames where no piece can be tracked.
type FullState struct {
	DelayMs int
	Board   *tetris.Board
	Next    tetris.TetrominoType
	Level   int
	Lines   int
	Score   int
}

// Countdown reports the 3-2-1 countdown value.
type Countdown struct {
	DelayMs int
	Value   int
}

func (Start) Opcode() Opcode     { return OpStart }
func (End) Opcode() Opcode       { return OpEnd }
func (Placement) Opcode() Opcode { return OpPlacement }
func (FullBoard) Opcode() Opcode { return OpFullBoard }
func (AbbrBoard) Opcode() Opcode { return OpAbbrBoard }
func (Recovery) Opcode() Opcode  { return OpRecovery }
func (FullState) Opcode() Opcode { return OpFullState }
func (Countdown) Opcode() Opcode { return OpCountdown }

func (p Placement) Delay() int { return p.DelayMs }
func (p FullBoard) Delay() int { return p.DelayMs }
func (p AbbrBoard) Delay() int { return p.DelayMs }
func (p FullState) Delay() int { return p.DelayMs }
func (p Countdown) Delay() int { return p.DelayMs }

func (p Start) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.Level, levelBits),
		writeType(w, p.Current),
		writeType(w, p.Next),
	)
}

func (End) encodeContent(*BitWriter) error { return nil }

func (p Placement) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.DelayMs, deltaBits),
		writeType(w, p.NextNext),
		writePose(w, p.Pose),
		writeInt(w, p.Pushdown, pushdownBits),
	)
}

func (p FullBoard) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.DelayMs, deltaBits),
		writeBoard(w, p.Board),
	)
}

func (p AbbrBoard) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.DelayMs, deltaBits),
		writePose(w, p.Pose),
	)
}

func (p Recovery) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.StartLevel, levelBits),
		writeType(w, p.Current),
		writeType(w, p.Next),
		writeBoard(w, p.Board),
		writeInt(w, p.Score, scoreBits),
		writeInt(w, p.Level, levelBits),
		writeInt(w, p.Lines, linesBits),
		writeInt(w, p.Countdown, countdownBits),
	)
}

func (p FullState) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.DelayMs, deltaBits),
		writeBoard(w, p.Board),
		writeType(w, p.Next),
		writeInt(w, p.Level, levelBits),
		writeInt(w, p.Lines, linesBits),
		writeInt(w, p.Score, scoreBits),
	)
}

func (p Countdown) encodeContent(w *BitWriter) error {
	return firstErr(
		writeInt(w, p.DelayMs, deltaBits),
		writeInt(w, p.Value, countdownBits),
	)
}

// Encode returns the header and content bits of p.
func Encode(p Packet) (*BitWriter, error) {
	content := &BitWriter{}
	if err := p.encodeContent(content); err != nil {
		return nil, fmt.Errorf("packet: cannot encode %s: %w", p.Opcode(), err)
	}
	if want := contentBits[p.Opcode()]; content.Len() != want {
		return nil, fmt.Errorf("packet: %s content is %d bits, expected %d", p.Opcode(), content.Len(), want)
	}
	w := &BitWriter{}
	if err := w.WriteUint(uint64(p.Opcode()), OpcodeBits); err != nil {
		return nil, err
	}
	w.WriteBits(content)
	return w, nil
}

// Decode reads one packet, header included, from r. It returns (nil, nil)
// when the next opcode is OpLast.
func Decode(r *BitReader) (Packet, error) {
	v, err := r.ReadUint(OpcodeBits)
	if err != nil {
		return nil, err
	}
	op := Opcode(v)
	n, ok := contentBits[op]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, v)
	}
	if op == OpLast {
		return nil, nil
	}
	c, err := r.Sub(n)
	if err != nil {
		return nil, fmt.Errorf("packet: cannot decode %s: %w", op, err)
	}
	d := decoder{r: c}

	var p Packet
	switch op {
	case OpStart:
		p = Start{Level: d.field(levelBits), Current: d.typ(), Next: d.typ()}
	case OpEnd:
		p = End{}
	case OpPlacement:
		p = Placement{DelayMs: d.field(deltaBits), NextNext: d.typ(), Pose: d.pose(), Pushdown: d.field(pushdownBits)}
	case OpFullBoard:
		p = FullBoard{DelayMs: d.field(deltaBits), Board: d.board()}
	case OpAbbrBoard:
		p = AbbrBoard{DelayMs: d.field(deltaBits), Pose: d.pose()}
	case OpRecovery:
		p = Recovery{
			StartLevel: d.field(levelBits),
			Current:    d.typ(),
			Next:       d.typ(),
			Board:      d.board(),
			Score:      d.field(scoreBits),
			Level:      d.field(levelBits),
			Lines:      d.field(linesBits),
			Countdown:  d.field(countdownBits),
		}
	case OpFullState:
		p = FullState{
			DelayMs: d.field(deltaBits),
			Board:   d.board(),
			Next:    d.typ(),
			Level:   d.field(levelBits),
			Lines:   d.field(linesBits),
			Score:   d.field(scoreBits),
		}
	case OpCountdown:
		p = Countdown{DelayMs: d.field(deltaBits), Value: d.field(countdownBits)}
	}
	if d.err != nil {
		return nil, fmt.Errorf("packet: cannot decode %s: %w", op, d.err)
	}
	if c.Remaining() != 0 {
		return nil, fmt.Errorf("packet: %s decoder left %d bits", op, c.Remaining())
	}
	return p, nil
}

// decoder reads fields and keeps the first error.
type decoder struct {
	r   *BitReader
	err error
}

func (d *decoder) field(bits int) int {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadUint(bits)
	d.err = err
	return int(v)
}

func (d *decoder) typ() tetris.TetrominoType {
	return tetris.TetrominoType(d.field(typeBits))
}

func (d *decoder) pose() tetris.Pose {
	return tetris.DecodePose(uint16(d.field(poseBits)))
}

func (d *decoder) board() *tetris.Board {
	b := tetris.NewBoard()
	for y := 0; y < tetris.Height; y++ {
		for x := 0; x < tetris.Width; x++ {
			b.SetAt(x, y, tetris.ColorType(d.field(2)))
		}
	}
	return b
}

func writeInt(w *BitWriter, v, bits int) error {
	if v < 0 {
		return fmt.Errorf("negative value %d", v)
	}
	return w.WriteUint(uint64(v), bits)
}

func writeType(w *BitWriter, t tetris.TetrominoType) error {
	return writeInt(w, int(t), typeBits)
}

func writePose(w *BitWriter, p tetris.Pose) error {
	v, err := tetris.EncodePose(p)
	if err != nil {
		return err
	}
	return w.WriteUint(uint64(v), poseBits)
}

func writeBoard(w *BitWriter, b *tetris.Board) error {
	if b == nil {
		b = tetris.NewBoard()
	}
	for y := 0; y < tetris.Height; y++ {
		for x := 0; x < tetris.Width; x++ {
			if err := w.WriteUint(uint64(b.At(x, y)), 2); err != nil {
				return err
			}
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
