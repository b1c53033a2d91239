package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Scene is the game state a rendered frame shows.
type Scene struct {
	Board *tetris.Board
	Next  tetris.TetrominoType
	Level int
	Score int
	Lines int
}

// Layout places the boxes of a rendered frame. Digit boxes are the outer
// boxes; the digits go inside the profile's text fractions.
type Layout struct {
	Width, Height int
	Board         core.Rect
	Next          core.Rect
	Level         core.Rect
	Score         core.Rect
	Lines         core.Rect
}

// DefaultLayout arranges the boxes so that the default profile's relative
// seeds land on the background of each box.
func DefaultLayout() Layout {
	return Layout{
		Width:  720,
		Height: 520,
		Board:  core.NewRect(240, 100, 200, 403),
		Next:   core.NewRect(500, 260, 120, 100),
		Level:  core.NewRect(450, 370, 160, 100),
		Score:  core.NewRect(450, 40, 260, 210),
		Lines:  core.NewRect(100, 20, 340, 70),
	}
}

// Palette colors of rendered frames.
var (
	renderBackground = RGB{R: 110, G: 110, B: 110}
	renderBox        = RGB{}
	renderText       = RGB{R: 250, G: 250, B: 250}
	renderMino       = map[tetris.ColorType]RGB{
		tetris.ColorPrimary:   {R: 60, G: 140, B: 250},
		tetris.ColorSecondary: {R: 250, G: 110, B: 60},
		tetris.ColorWhite:     {R: 245, G: 245, B: 245},
	}
)

// Renderer draws synthetic captures with the same geometry the extractor
// samples, for tests and calibration checks without a console.
type Renderer struct {
	layout  Layout
	profile config.Profile
	digits  config.DigitSet
}

// NewRenderer creates a renderer.
func NewRenderer(layout Layout, profile config.Profile, digits config.DigitSet) *Renderer {
	return &Renderer{layout: layout, profile: profile, digits: digits}
}

// Calibration returns the calibration a perfect Calibrate run recovers from
// a rendered frame.
func (r *Renderer) Calibration() Calibration {
	c := r.profile.Calibration
	return Calibration{
		Seed: r.BoardSeed(),
		Rects: Rects{
			Board: r.layout.Board,
			Next:  r.layout.Next,
			Level: TextRect(r.layout.Level, c.Level.Text),
			Score: TextRect(r.layout.Score, c.Score.Text),
			Lines: TextRect(r.layout.Lines, c.Lines.Text),
		},
	}
}

// BoardSeed returns a calibration click inside the top-left cell.
func (r *Renderer) BoardSeed() image.Point {
	x, y := NewBoardBox(r.layout.Board, r.profile.Board).MinoCenter(0, 0).Round()
	return image.Point{X: x, Y: y}
}

// Render draws scene.
func (r *Renderer) Render(scene Scene) *ImageFrame {
	f := NewImageFrame(image.NewRGBA(image.Rect(0, 0, r.layout.Width, r.layout.Height)))
	fillRect(f, core.NewRect(0, 0, r.layout.Width, r.layout.Height), renderBackground)

	for _, box := range []core.Rect{r.layout.Board, r.layout.Next, r.layout.Level, r.layout.Score, r.layout.Lines} {
		fillRect(f, box, renderBox)
	}

	board := NewBoardBox(r.layout.Board, r.profile.Board)
	if scene.Board != nil {
		for _, p := range scene.Board.Cells() {
			fillRect(f, board.CellRect(p.X, p.Y), renderMino[scene.Board.At(p.X, p.Y)])
		}
	}

	next := NewNextBox(r.layout.Next, r.profile.Next)
	grid := ReferenceGrid(scene.Next, r.profile.Next.Columns, r.profile.Next.Rows)
	sx, sy := next.SampleSpacing()
	for row := range grid {
		for col, on := range grid[row] {
			if !on {
				continue
			}
			c := next.SamplePoint(col, row)
			x0, y0 := int(math.Round(c.X-sx/2)), int(math.Round(c.Y-sy/2))
			x1, y1 := int(math.Round(c.X+sx/2)), int(math.Round(c.Y+sy/2))
			fillRect(f, core.RectFromBounds(x0, y0, x1-1, y1-1), renderText)
		}
	}

	cal := r.Calibration()
	c := r.profile.Calibration
	r.drawNumber(f, NewNumberBox(cal.Rects.Level, c.Level.Digits, r.profile.Digits), scene.Level)
	r.drawNumber(f, NewNumberBox(cal.Rects.Score, c.Score.Digits, r.profile.Digits), scene.Score)
	r.drawNumber(f, NewNumberBox(cal.Rects.Lines, c.Lines.Digits, r.profile.Digits), scene.Lines)
	return f
}

func (r *Renderer) drawNumber(f *ImageFrame, box NumberBox, value int) {
	if value < 0 {
		return
	}
	limit := int(math.Pow10(box.digits)) - 1
	text := fmt.Sprintf("%0*d", box.digits, min(value, limit))
	size := r.digits.Size
	for i, ch := range text {
		glyph := r.digits.Bitmap(int(ch - '0'))
		if len(glyph) != size*size {
			continue
		}
		rect := box.DigitRect(i)
		for py := rect.Y; py < rect.Bottom(); py++ {
			gy := (py - rect.Y) * size / rect.H
			for px := rect.X; px < rect.Right(); px++ {
				gx := (px - rect.X) * size / rect.W
				if glyph[gy*size+gx] {
					f.Set(px, py, renderText)
				}
			}
		}
	}
}

func fillRect(f *ImageFrame, r core.Rect, c RGB) {
	b := f.Bounds()
	for y := max(r.Y, b.Min.Y); y < min(r.Bottom(), b.Max.Y); y++ {
		for x := max(r.X, b.Min.X); x < min(r.Right(), b.Max.X); x++ {
			f.Set(x, y, c)
		}
	}
}
