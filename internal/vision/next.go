package vision

import (
	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Grid is a binary sample grid, indexed [row][column].
type Grid [][]bool

// NewGrid returns an all-false grid.
func NewGrid(cols, rows int) Grid {
	g := make(Grid, rows)
	for y := range g {
		g[y] = make([]bool, cols)
	}
	return g
}

// Differences counts the cells where g and o disagree. Grids of different
// shapes differ everywhere.
func (g Grid) Differences(o Grid) int {
	if len(g) != len(o) {
		return g.cells() + o.cells()
	}
	diff := 0
	for y := range g {
		if len(g[y]) != len(o[y]) {
			return g.cells() + o.cells()
		}
		for x := range g[y] {
			if g[y][x] != o[y][x] {
				diff++
			}
		}
	}
	return diff
}

func (g Grid) cells() int {
	n := 0
	for _, row := range g {
		n += len(row)
	}
	return n
}

// String renders the grid with '#' for set cells.
func (g Grid) String() string {
	var out []byte
	for _, row := range g {
		for _, v := range row {
			if v {
				out = append(out, '#')
			} else {
				out = append(out, '.')
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}

// ReferenceGrid returns how piece t appears in the next box when sampled on
// a cols x rows grid: every mino covers two by two samples and the piece is
// centered in a box four minos wide and rows/2 minos tall.
func ReferenceGrid(t tetris.TetrominoType, cols, rows int) Grid {
	g := NewGrid(cols, rows)
	if !t.Valid() {
		return g
	}
	cells := tetris.ShapeCells(t, 0)
	minX, minY, maxX, maxY := cells[0].X, cells[0].Y, cells[0].X, cells[0].Y
	for _, c := range cells {
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minY, maxY = min(minY, c.Y), max(maxY, c.Y)
	}
	w, h := maxX-minX+1, maxY-minY+1
	// Offsets in samples; one mino is two samples.
	ox := (cols - 2*w) / 2
	oy := (rows - 2*h) / 2
	for _, c := range cells {
		x0, y0 := ox+2*(c.X-minX), oy+2*(c.Y-minY)
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				if y0+dy >= 0 && y0+dy < rows && x0+dx >= 0 && x0+dx < cols {
					g[y0+dy][x0+dx] = true
				}
			}
		}
	}
	return g
}

// NextBox samples the next-piece box on an evenly spaced grid.
type NextBox struct {
	rect       core.Rect
	profile    config.NextProfile
	references []Grid
}

// NewNextBox creates the sampler for the calibrated next box.
func NewNextBox(rect core.Rect, profile config.NextProfile) *NextBox {
	b := &NextBox{rect: rect, profile: profile}
	for _, t := range tetris.AllTypes {
		b.references = append(b.references, ReferenceGrid(t, profile.Columns, profile.Rows))
	}
	return b
}

// Rect returns the next box rectangle.
func (b *NextBox) Rect() core.Rect { return b.rect }

// SamplePoint returns the pixel sampled for grid cell (col, row). Samples
// span the padded box with the outer samples on the padding edges.
func (b *NextBox) SamplePoint(col, row int) core.PointF {
	p := b.profile.Padding
	fx, fy := p.Left, p.Top
	if b.profile.Columns > 1 {
		fx += float64(col) / float64(b.profile.Columns-1) * (1 - p.Left - p.Right)
	}
	if b.profile.Rows > 1 {
		fy += float64(row) / float64(b.profile.Rows-1) * (1 - p.Top - p.Bottom)
	}
	return b.rect.At(fx, fy)
}

// SampleSpacing returns the distance between neighboring samples.
func (b *NextBox) SampleSpacing() (float64, float64) {
	p := b.profile.Padding
	sx := float64(b.rect.W) * (1 - p.Left - p.Right) / float64(max(1, b.profile.Columns-1))
	sy := float64(b.rect.H) * (1 - p.Top - p.Bottom) / float64(max(1, b.profile.Rows-1))
	return sx, sy
}

// ReadGrid samples the box.
func (b *NextBox) ReadGrid(frame Frame) Grid {
	g := NewGrid(b.profile.Columns, b.profile.Rows)
	for y := range g {
		for x := range g[y] {
			px, py := b.SamplePoint(x, y).Round()
			c, ok := frame.Pixel(px, py)
			g[y][x] = ok && c.Average() > b.profile.BrightnessThreshold
		}
	}
	return g
}

// Classify returns the piece whose reference grid is closest to g, or
// TypeError when even the closest differs in more than MaxDifference cells.
// Ties go to the first piece in encoding order.
func (b *NextBox) Classify(g Grid) tetris.TetrominoType {
	best, bestDiff := tetris.TypeError, -1
	for i, ref := range b.references {
		d := ref.Differences(g)
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = tetris.AllTypes[i], d
		}
	}
	if bestDiff < 0 || bestDiff > b.profile.MaxDifference {
		return tetris.TypeError
	}
	return best
}

// ReadNext samples and classifies the next piece.
func (b *NextBox) ReadNext(frame Frame) tetris.TetrominoType {
	if b.rect.Empty() {
		return tetris.TypeError
	}
	return b.Classify(b.ReadGrid(frame))
}
