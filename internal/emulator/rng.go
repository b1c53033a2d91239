package emulator

import (
	"math/rand"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// PieceGenerator yields the piece sequence of a game.
type PieceGenerator interface {
	Next() tetris.TetrominoType
}

// RandomGenerator reproduces the NES piece distribution: roll one of eight
// outcomes, and reroll once among the seven pieces if the roll was the
// dummy eighth value or repeats the previous piece.
type RandomGenerator struct {
	rng  *rand.Rand
	last tetris.TetrominoType
}

// NewRandomGenerator creates a generator with a fixed seed for reproducible
// games.
func NewRandomGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{
		rng:  rand.New(rand.NewSource(seed)),
		last: tetris.TypeError,
	}
}

// Next returns the next piece.
func (g *RandomGenerator) Next() tetris.TetrominoType {
	t := tetris.TetrominoType(g.rng.Intn(8))
	if t == tetris.TypeError || t == g.last {
		t = tetris.TetrominoType(g.rng.Intn(7))
	}
	g.last = t
	return t
}

// SequenceGenerator cycles through a fixed list of pieces.
type SequenceGenerator struct {
	pieces []tetris.TetrominoType
	i      int
}

// NewSequenceGenerator creates a generator that repeats pieces forever.
func NewSequenceGenerator(pieces ...tetris.TetrominoType) *SequenceGenerator {
	if len(pieces) == 0 {
		pieces = []tetris.TetrominoType{tetris.TypeT}
	}
	return &SequenceGenerator{pieces: pieces}
}

// Next returns the next piece of the sequence.
func (g *SequenceGenerator) Next() tetris.TetrominoType {
	t := g.pieces[g.i%len(g.pieces)]
	g.i++
	return t
}
