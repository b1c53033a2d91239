// Package vision reads NES Tetris game state out of captured video frames:
// floodfill calibration of the on-screen boxes, the binary board, board
// noise, the next piece and the digit boxes.
package vision

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for captured stills
	_ "image/png"
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// RGB is one pixel without alpha.
type RGB struct {
	R, G, B uint8
}

// Average returns the mean of the three channels, the brightness measure
// used by every threshold in this package.
func (c RGB) Average() float64 {
	return (float64(c.R) + float64(c.G) + float64(c.B)) / 3
}

// Distance returns the Euclidean distance between two colors.
func (c RGB) Distance(o RGB) float64 {
	dr := float64(c.R) - float64(o.R)
	dg := float64(c.G) - float64(o.G)
	db := float64(c.B) - float64(o.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Similar reports whether every channel differs by less than tolerance.
func (c RGB) Similar(o RGB, tolerance int) bool {
	return absDiff(c.R, o.R) < tolerance && absDiff(c.G, o.G) < tolerance && absDiff(c.B, o.B) < tolerance
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Frame is one captured video frame.
type Frame interface {
	Bounds() image.Rectangle
	// Pixel returns the color at (x, y) and false when the point is outside
	// the frame.
	Pixel(x, y int) (RGB, bool)
	// Image returns the frame for scaling operations.
	Image() image.Image
}

// ImageFrame is a Frame backed by an RGBA image.
type ImageFrame struct {
	img *image.RGBA
}

// NewImageFrame wraps img, converting it to RGBA when needed.
func NewImageFrame(img image.Image) *ImageFrame {
	if rgba, ok := img.(*image.RGBA); ok {
		return &ImageFrame{img: rgba}
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return &ImageFrame{img: rgba}
}

// Bounds returns the frame rectangle.
func (f *ImageFrame) Bounds() image.Rectangle { return f.img.Bounds() }

// Image returns the underlying image.
func (f *ImageFrame) Image() image.Image { return f.img }

// Pixel returns the color at (x, y).
func (f *ImageFrame) Pixel(x, y int) (RGB, bool) {
	if !(image.Point{X: x, Y: y}).In(f.img.Rect) {
		return RGB{}, false
	}
	i := f.img.PixOffset(x, y)
	s := f.img.Pix[i : i+3 : i+3]
	return RGB{R: s[0], G: s[1], B: s[2]}, true
}

// Set paints one pixel. Used when rendering synthetic frames.
func (f *ImageFrame) Set(x, y int, c RGB) {
	f.img.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
}

// DecodeFrame decodes a PNG, JPEG, BMP or WebP still.
func DecodeFrame(r io.Reader) (*ImageFrame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("vision: cannot decode frame: %w", err)
	}
	return NewImageFrame(img), nil
}

// LoadFrame decodes the still at path.
func LoadFrame(path string) (*ImageFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vision: cannot open frame: %w", err)
	}
	defer f.Close()
	return DecodeFrame(f)
}
