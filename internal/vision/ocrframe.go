package vision

import (
	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Extractor holds everything derived from a calibration so that reading a
// frame only samples pixels.
type Extractor struct {
	cal        Calibration
	board      BoardBox
	next       *NextBox
	level      NumberBox
	score      NumberBox
	lines      NumberBox
	classifier DigitClassifier
}

// NewExtractor prepares the boxes of cal.
func NewExtractor(cal Calibration, profile config.Profile, classifier DigitClassifier) *Extractor {
	c := profile.Calibration
	return &Extractor{
		cal:        cal,
		board:      NewBoardBox(cal.Rects.Board, profile.Board),
		next:       NewNextBox(cal.Rects.Next, profile.Next),
		level:      NewNumberBox(cal.Rects.Level, c.Level.Digits, profile.Digits),
		score:      NewNumberBox(cal.Rects.Score, c.Score.Digits, profile.Digits),
		lines:      NewNumberBox(cal.Rects.Lines, c.Lines.Digits, profile.Digits),
		classifier: classifier,
	}
}

// Calibration returns the calibration the extractor was built from.
func (e *Extractor) Calibration() Calibration { return e.cal }

// Board returns the board geometry.
func (e *Extractor) Board() BoardBox { return e.board }

// Next returns the next-box sampler.
func (e *Extractor) Next() *NextBox { return e.next }

// Level returns the level digit box.
func (e *Extractor) Level() NumberBox { return e.level }

// Score returns the score digit box.
func (e *Extractor) Score() NumberBox { return e.score }

// Lines returns the lines digit box.
func (e *Extractor) Lines() NumberBox { return e.lines }

// Read wraps frame for lazy feature extraction.
func (e *Extractor) Read(index int, frame Frame) *OCRFrame {
	return &OCRFrame{index: index, frame: frame, ex: e}
}

// OCRFrame extracts features from one frame on first request and caches
// them. It is not safe for concurrent use.
type OCRFrame struct {
	index int
	frame Frame
	ex    *Extractor

	board     *tetris.Board
	noise     float64
	next      tetris.TetrominoType
	level     int
	score     int
	lines     int
	tetromino tetris.MoveableTetromino
	hasPiece  bool

	computed struct {
		board, noise, next, level, score, lines, tetromino bool
	}
}

// Index returns the frame's position in the capture.
func (f *OCRFrame) Index() int { return f.index }

// Frame returns the raw frame.
func (f *OCRFrame) Frame() Frame { return f.frame }

// BinaryBoard returns the board read through the block shine. The returned
// board is shared; callers must copy before modifying it.
func (f *OCRFrame) BinaryBoard() *tetris.Board {
	if !f.computed.board {
		f.board = f.ex.board.ReadBoard(f.frame)
		f.computed.board = true
	}
	return f.board
}

// Noise returns the board noise.
func (f *OCRFrame) Noise() float64 {
	if !f.computed.noise {
		f.noise = f.ex.board.Noise(f.frame)
		f.computed.noise = true
	}
	return f.noise
}

// NextType returns the piece in the next box, or TypeError.
func (f *OCRFrame) NextType() tetris.TetrominoType {
	if !f.computed.next {
		f.next = f.ex.next.ReadNext(f.frame)
		f.computed.next = true
	}
	return f.next
}

// Level returns the level, or -1 when it cannot be read.
func (f *OCRFrame) Level() int {
	if !f.computed.level {
		f.level = f.ex.level.ReadNumber(f.frame, f.ex.classifier)
		f.computed.level = true
	}
	return f.level
}

// Score returns the score, or -1 when it cannot be read.
func (f *OCRFrame) Score() int {
	if !f.computed.score {
		f.score = f.ex.score.ReadNumber(f.frame, f.ex.classifier)
		f.computed.score = true
	}
	return f.score
}

// Lines returns the line count, or -1 when it cannot be read.
func (f *OCRFrame) Lines() int {
	if !f.computed.lines {
		f.lines = f.ex.lines.ReadNumber(f.frame, f.ex.classifier)
		f.computed.lines = true
	}
	return f.lines
}

// BoardOnlyTetromino returns the piece when the board holds exactly one
// tetromino and nothing else.
func (f *OCRFrame) BoardOnlyTetromino() (tetris.MoveableTetromino, bool) {
	if !f.computed.tetromino {
		f.tetromino, f.hasPiece = tetris.ExtractFromBoard(f.BinaryBoard())
		f.computed.tetromino = true
	}
	return f.tetromino, f.hasPiece
}
