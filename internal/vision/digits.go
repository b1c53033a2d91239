package vision

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// Prediction is a classified digit and the classifier's confidence in it.
type Prediction struct {
	Digit       int
	Probability float64
}

// Accepted reports whether the prediction is confident enough to use.
func (p Prediction) Accepted(minConfidence float64) bool {
	return p.Digit >= 0 && p.Probability >= minConfidence
}

// DigitClassifier turns a square binary bitmap, row-major, into a digit.
type DigitClassifier interface {
	PredictDigit(bitmap []bool) Prediction
}

// HammingClassifier picks the reference glyph with the fewest differing
// bits. Confidence falls linearly with the distance.
type HammingClassifier struct {
	size       int
	references [10][]bool
}

// NewHammingClassifier builds a classifier from reference glyphs.
func NewHammingClassifier(set config.DigitSet) (*HammingClassifier, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("vision: invalid digit set: %w", err)
	}
	c := &HammingClassifier{size: set.Size}
	for d := range c.references {
		c.references[d] = set.Bitmap(d)
	}
	return c, nil
}

// Size returns the bitmap side length the classifier expects.
func (c *HammingClassifier) Size() int { return c.size }

// PredictDigit returns the closest digit. A bitmap of the wrong size gets
// digit -1 and zero confidence.
func (c *HammingClassifier) PredictDigit(bitmap []bool) Prediction {
	n := c.size * c.size
	if len(bitmap) != n {
		return Prediction{Digit: -1}
	}
	best, bestDist := -1, n+1
	for d, ref := range c.references {
		dist := 0
		for i := range ref {
			if ref[i] != bitmap[i] {
				dist++
			}
		}
		if dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return Prediction{Digit: best, Probability: 1 - float64(bestDist)/float64(n)}
}

// NumberBox reads a fixed number of digits laid out evenly in a text rect.
type NumberBox struct {
	rect    core.Rect
	digits  int
	profile config.DigitProfile
}

// NewNumberBox creates a reader for a box with the given number of digits.
func NewNumberBox(rect core.Rect, digits int, profile config.DigitProfile) NumberBox {
	return NumberBox{rect: rect, digits: digits, profile: profile}
}

// Rect returns the text rectangle.
func (b NumberBox) Rect() core.Rect { return b.rect }

// DigitRect returns the area of digit i, counted from the left.
func (b NumberBox) DigitRect(i int) core.Rect {
	n := float64(b.digits)
	return b.rect.Sub(float64(i)/n, 0, float64(i+1)/n, 1)
}

// DigitBitmap scales digit i down to the classifier grid and thresholds it.
func (b NumberBox) DigitBitmap(frame Frame, i int) []bool {
	size := b.profile.GridSize
	r := b.DigitRect(i)
	src := image.Rect(r.X, r.Y, r.Right(), r.Bottom())

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame.Image(), src, draw.Src, nil)

	bits := make([]bool, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			o := dst.PixOffset(x, y)
			c := RGB{R: dst.Pix[o], G: dst.Pix[o+1], B: dst.Pix[o+2]}
			bits[y*size+x] = c.Average() > b.profile.PixelThreshold
		}
	}
	return bits
}

// ReadDigits classifies every digit.
func (b NumberBox) ReadDigits(frame Frame, classifier DigitClassifier) []Prediction {
	preds := make([]Prediction, b.digits)
	for i := range preds {
		preds[i] = classifier.PredictDigit(b.DigitBitmap(frame, i))
	}
	return preds
}

// ReadNumber returns the value of the box, or -1 when the box is not
// calibrated or any digit falls below the confidence threshold. A partially
// read number is never returned.
func (b NumberBox) ReadNumber(frame Frame, classifier DigitClassifier) int {
	if b.rect.Empty() || b.digits <= 0 {
		return -1
	}
	value := 0
	for _, p := range b.ReadDigits(frame, classifier) {
		if !p.Accepted(b.profile.MinConfidence) {
			return -1
		}
		value = value*10 + p.Digit
	}
	return value
}
