package ocr

import "github.com/vovakirdan/nestris-ocr/internal/tetris"

// FrameFeatures is what the state machine reads from one captured frame.
// *vision.OCRFrame implements it; every method may be expensive on first
// call and is expected to cache its result.
type FrameFeatures interface {
	BinaryBoard() *tetris.Board
	Noise() float64
	NextType() tetris.TetrominoType
	// Level, Score and Lines return -1 when the digits cannot be read.
	Level() int
	Score() int
	Lines() int
	// BoardOnlyTetromino returns the piece when the board holds exactly
	// one tetromino and nothing else.
	BoardOnlyTetromino() (tetris.MoveableTetromino, bool)
}
