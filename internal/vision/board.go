package vision

import (
	"image"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// BoardBox maps board cells to pixels inside the calibrated board rectangle.
type BoardBox struct {
	rect    core.Rect
	profile config.BoardProfile
}

// NewBoardBox creates the cell geometry for rect.
func NewBoardBox(rect core.Rect, profile config.BoardProfile) BoardBox {
	return BoardBox{rect: rect, profile: profile}
}

// Rect returns the board rectangle.
func (b BoardBox) Rect() core.Rect { return b.rect }

// CellSize returns the width and height of one cell in pixels.
func (b BoardBox) CellSize() (float64, float64) {
	return float64(b.rect.W) / tetris.Width, float64(b.rect.H) / b.profile.RowDivisor
}

// MinoCenter returns the center of cell (x, y).
func (b BoardBox) MinoCenter(x, y int) core.PointF {
	return b.rect.At((float64(x)+0.5)/tetris.Width, (float64(y)+0.5)/b.profile.RowDivisor)
}

// CellRect returns the pixel area of cell (x, y).
func (b BoardBox) CellRect(x, y int) core.Rect {
	return b.rect.Sub(
		float64(x)/tetris.Width,
		float64(y)/b.profile.RowDivisor,
		float64(x+1)/tetris.Width,
		float64(y+1)/b.profile.RowDivisor,
	)
}

// ShinePoint returns the block-shine sample of cell (x, y): the bright
// corner every rendered mino has regardless of its color.
func (b BoardBox) ShinePoint(x, y int) image.Point {
	h := float64(b.rect.H)
	px, py := b.MinoCenter(x, y).Add(-h*b.profile.ShineOffset.X, -h*b.profile.ShineOffset.Y).Round()
	return image.Point{X: px, Y: py}
}

// MinoPoints returns the interior samples of cell (x, y) compared for noise.
func (b BoardBox) MinoPoints(x, y int) []image.Point {
	cw, ch := b.CellSize()
	center := b.MinoCenter(x, y)
	pts := make([]image.Point, len(b.profile.MinoPoints))
	for i, o := range b.profile.MinoPoints {
		px, py := center.Add(o.X*cw, o.Y*ch).Round()
		pts[i] = image.Point{X: px, Y: py}
	}
	return pts
}

// ReadBoard samples the block shine of every cell. Detected minos are
// reported as ColorPrimary because only occupancy is read.
func (b BoardBox) ReadBoard(frame Frame) *tetris.Board {
	board := tetris.NewBoard()
	for y := 0; y < tetris.Height; y++ {
		for x := 0; x < tetris.Width; x++ {
			p := b.ShinePoint(x, y)
			c, ok := frame.Pixel(p.X, p.Y)
			if ok && c.Average() > b.profile.ShineThreshold {
				board.SetAt(x, y, tetris.ColorPrimary)
			}
		}
	}
	return board
}

// Noise returns the average color distance between the mino points of each
// cell. A captured board is flat inside every cell, so a high value means
// the frame is not showing a board.
func (b BoardBox) Noise(frame Frame) float64 {
	total := 0.0
	for y := 0; y < tetris.Height; y++ {
		for x := 0; x < tetris.Width; x++ {
			pts := b.MinoPoints(x, y)
			if len(pts) < 2 {
				continue
			}
			c1, ok1 := frame.Pixel(pts[0].X, pts[0].Y)
			c2, ok2 := frame.Pixel(pts[1].X, pts[1].Y)
			if !ok1 || !ok2 {
				continue
			}
			total += c1.Distance(c2)
		}
	}
	return total / (tetris.Width * tetris.Height)
}
