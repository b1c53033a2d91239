package vision

import (
	"errors"
	"image"

	"github.com/kamstrup/intmap"

	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// ErrEmptyFloodfill is returned when a floodfill did not fill any pixel,
// usually because the seed was outside the frame.
var ErrEmptyFloodfill = errors.New("vision: floodfill is empty")

// neighbors are the eight directions a fill grows in.
var neighbors = [8]image.Point{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
}

// Floodfill grows regions of similar color from one or more seeds. Fills
// accumulate, so several seeds describe one region.
type Floodfill struct {
	frame     Frame
	tolerance int
	filled    *intmap.Map[int, struct{}]

	minX, minY, maxX, maxY int
}

// NewFloodfill creates an empty fill over frame. A pixel joins the region
// when every channel is within tolerance of the seed color.
func NewFloodfill(frame Frame, tolerance int) *Floodfill {
	b := frame.Bounds()
	return &Floodfill{
		frame:     frame,
		tolerance: tolerance,
		filled:    intmap.New[int, struct{}](1024),
		minX:      b.Max.X,
		minY:      b.Max.Y,
		maxX:      b.Min.X - 1,
		maxY:      b.Min.Y - 1,
	}
}

// Fill grows the region from seed. A seed outside the frame is ignored.
func (f *Floodfill) Fill(seed image.Point) {
	start, ok := f.frame.Pixel(seed.X, seed.Y)
	if !ok {
		return
	}
	width := f.frame.Bounds().Dx()
	origin := f.frame.Bounds().Min

	stack := []image.Point{seed}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := (p.Y-origin.Y)*width + (p.X - origin.X)
		if f.filled.Has(key) {
			continue
		}
		c, ok := f.frame.Pixel(p.X, p.Y)
		if !ok || !c.Similar(start, f.tolerance) {
			continue
		}
		f.filled.Put(key, struct{}{})
		f.minX, f.maxX = min(f.minX, p.X), max(f.maxX, p.X)
		f.minY, f.maxY = min(f.minY, p.Y), max(f.maxY, p.Y)

		for _, d := range neighbors {
			stack = append(stack, p.Add(d))
		}
	}
}

// Len returns the number of filled pixels.
func (f *Floodfill) Len() int {
	return f.filled.Len()
}

// Contains reports whether the pixel was filled.
func (f *Floodfill) Contains(p image.Point) bool {
	b := f.frame.Bounds()
	if !p.In(b) {
		return false
	}
	return f.filled.Has((p.Y-b.Min.Y)*b.Dx() + (p.X - b.Min.X))
}

// BoundingRect returns the smallest rectangle holding every filled pixel.
func (f *Floodfill) BoundingRect() (core.Rect, error) {
	if f.maxX < f.minX || f.maxY < f.minY {
		return core.Rect{}, ErrEmptyFloodfill
	}
	return core.RectFromBounds(f.minX, f.minY, f.maxX, f.maxY), nil
}

// FloodfillRect fills from every seed and returns the bounding rectangle.
func FloodfillRect(frame Frame, tolerance int, seeds ...image.Point) (core.Rect, error) {
	f := NewFloodfill(frame, tolerance)
	for _, s := range seeds {
		f.Fill(s)
	}
	return f.BoundingRect()
}
