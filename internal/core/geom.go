// Package core provides the platform primitives shared by the emulator, the
// vision pipeline and the terminal front ends: integer and fractional
// geometry, controller input with edge detection, and a colored character
// buffer. It has no external dependencies.
package core

import "math"

// Rect is an axis-aligned pixel rectangle. X, Y is the top-left corner.
type Rect struct {
	X, Y int // Top-left corner position
	W, H int // Width and height
}

// NewRect creates a new rectangle with the given position and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// RectFromBounds builds a rectangle from inclusive pixel bounds.
func RectFromBounds(left, top, right, bottom int) Rect {
	return Rect{X: left, Y: top, W: right - left + 1, H: bottom - top + 1}
}

// Right returns the x-coordinate of the right edge.
func (r Rect) Right() int {
	return r.X + r.W
}

// Bottom returns the y-coordinate of the bottom edge.
func (r Rect) Bottom() int {
	return r.Y + r.H
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersects returns true if this rectangle overlaps with another.
func (r Rect) Intersects(other Rect) bool {
	if r.X >= other.Right() || other.X >= r.Right() {
		return false
	}
	if r.Y >= other.Bottom() || other.Y >= r.Bottom() {
		return false
	}
	return true
}

// Contains returns true if the point (x, y) is inside this rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Center returns the center point of the rectangle.
func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// At maps fractional coordinates inside the rectangle to pixel space.
// (0, 0) is the top-left corner and (1, 1) the bottom-right one; values
// outside [0, 1] address points around the rectangle.
func (r Rect) At(fx, fy float64) PointF {
	return PointF{
		X: float64(r.X) + fx*float64(r.W),
		Y: float64(r.Y) + fy*float64(r.H),
	}
}

// Sub returns the part of the rectangle between the given fractional edges.
func (r Rect) Sub(left, top, right, bottom float64) Rect {
	tl := r.At(left, top)
	br := r.At(right, bottom)
	x, y := int(math.Round(tl.X)), int(math.Round(tl.Y))
	return Rect{
		X: x,
		Y: y,
		W: int(math.Round(br.X)) - x,
		H: int(math.Round(br.Y)) - y,
	}
}

// PointF is a sub-pixel position.
type PointF struct {
	X, Y float64
}

// Add returns the point translated by (dx, dy).
func (p PointF) Add(dx, dy float64) PointF {
	return PointF{X: p.X + dx, Y: p.Y + dy}
}

// Round returns the nearest integer pixel.
func (p PointF) Round() (int, int) {
	return int(math.Round(p.X)), int(math.Round(p.Y))
}

// Floor returns the pixel containing the point.
func (p PointF) Floor() (int, int) {
	return int(math.Floor(p.X)), int(math.Floor(p.Y))
}

// Clamp restricts a value to be within [min, max].
func Clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ClampF restricts a float64 value to be within [min, max].
func ClampF(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
