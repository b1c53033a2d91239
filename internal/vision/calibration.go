package vision

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// ErrBoxOverlapsBoard is returned when a box fill reaches into the board,
// usually because its seed landed on the board itself.
var ErrBoxOverlapsBoard = errors.New("vision: box overlaps the board")

// Rects holds the located boxes of a calibrated capture. Level, Score and
// Lines are the digit areas inside their boxes.
type Rects struct {
	Board core.Rect `yaml:"board"`
	Next  core.Rect `yaml:"next"`
	Level core.Rect `yaml:"level"`
	Score core.Rect `yaml:"score"`
	Lines core.Rect `yaml:"lines"`
}

// Calibration is created once per capture setup from a single click on the
// board and reused for every frame.
type Calibration struct {
	FrameIndex int         `yaml:"frame_index"`
	Seed       image.Point `yaml:"seed"`
	Rects      Rects       `yaml:"rects"`
}

// Missing returns the names of boxes besides the board that are empty.
func (c Calibration) Missing() []string {
	var missing []string
	for _, b := range []struct {
		name string
		rect core.Rect
	}{
		{"next", c.Rects.Next},
		{"level", c.Rects.Level},
		{"score", c.Rects.Score},
		{"lines", c.Rects.Lines},
	} {
		if b.rect.Empty() {
			missing = append(missing, b.name)
		}
	}
	return missing
}

// Calibrate locates the board by floodfilling from seed, then finds the next
// box and the digit boxes from seeds placed relative to the board. Every box
// must be found apart from the board: an empty fill or one reaching into the
// board fails the whole calibration.
func Calibrate(frame Frame, frameIndex int, seed image.Point, profile config.CalibrationProfile) (Calibration, error) {
	board, err := FloodfillRect(frame, profile.Tolerance, seed)
	if err != nil {
		return Calibration{}, fmt.Errorf("vision: calibration failed: board: %w", err)
	}

	cal := Calibration{
		FrameIndex: frameIndex,
		Seed:       seed,
		Rects:      Rects{Board: board},
	}

	next, err := locateBox(frame, board, profile.Next, profile.Tolerance)
	if err != nil {
		return Calibration{}, fmt.Errorf("vision: calibration failed: next: %w", err)
	}
	cal.Rects.Next = next

	for _, nb := range []struct {
		name string
		box  config.BoxProfile
		dest *core.Rect
	}{
		{"level", profile.Level, &cal.Rects.Level},
		{"score", profile.Score, &cal.Rects.Score},
		{"lines", profile.Lines, &cal.Rects.Lines},
	} {
		box, err := locateBox(frame, board, nb.box, profile.Tolerance)
		if err != nil {
			return Calibration{}, fmt.Errorf("vision: calibration failed: %s: %w", nb.name, err)
		}
		text := TextRect(box, nb.box.Text)
		if text.Empty() {
			return Calibration{}, fmt.Errorf("vision: calibration failed: %s: %w", nb.name, ErrEmptyFloodfill)
		}
		*nb.dest = text
	}
	return cal, nil
}

// SeedPoint maps a seed given relative to the board rectangle to pixels.
func SeedPoint(board core.Rect, seed config.Offset) image.Point {
	x, y := board.At(seed.X, seed.Y).Round()
	return image.Point{X: x, Y: y}
}

// TextRect returns the digit area of a box.
func TextRect(box core.Rect, text config.Fractions) core.Rect {
	return box.Sub(text.Left, text.Top, text.Right, text.Bottom)
}

func locateBox(frame Frame, board core.Rect, box config.BoxProfile, tolerance int) (core.Rect, error) {
	seeds := make([]image.Point, 0, 1+len(box.ExtraSeeds))
	seeds = append(seeds, SeedPoint(board, box.Seed))
	for _, extra := range box.ExtraSeeds {
		seeds = append(seeds, SeedPoint(board, extra))
	}
	rect, err := FloodfillRect(frame, tolerance, seeds...)
	if err != nil {
		return core.Rect{}, err
	}
	if rect.Intersects(board) {
		return core.Rect{}, ErrBoxOverlapsBoard
	}
	return rect, nil
}

// SaveCalibration writes the calibration as YAML.
func SaveCalibration(path string, cal Calibration) error {
	data, err := yaml.Marshal(cal)
	if err != nil {
		return fmt.Errorf("vision: cannot encode calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vision: cannot write calibration: %w", err)
	}
	return nil
}

// LoadCalibration reads a calibration written by SaveCalibration.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("vision: cannot read calibration: %w", err)
	}
	var cal Calibration
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return Calibration{}, fmt.Errorf("vision: cannot parse calibration: %w", err)
	}
	if cal.Rects.Board.Empty() {
		return Calibration{}, fmt.Errorf("vision: calibration %s has no board", path)
	}
	if missing := cal.Missing(); len(missing) > 0 {
		return Calibration{}, fmt.Errorf("vision: calibration %s has no %s box", path, strings.Join(missing, ", "))
	}
	return cal, nil
}
