package config

import (
	_ "embed"
	"errors"
	"fmt"
)

//go:embed defaults/nestris.yaml
var defaultConfigYAML []byte

//go:embed defaults/digits.yaml
var defaultDigitsYAML []byte

// Default returns the default configuration, tuned for a live capture of an
// NTSC console.
func Default() Config {
	return Config{
		Emulator: DefaultEmulatorConfig(),
		Profile:  DefaultProfile(),
		OCR:      DefaultOCRConfig(),
		Analysis: AnalysisConfig{
			TimeoutMs:  2000,
			Difficulty: 1.5,
		},
	}
}

// DefaultEmulatorConfig returns NES timing constants.
func DefaultEmulatorConfig() EmulatorConfig {
	return EmulatorConfig{
		FPS:               60,
		MaxDAS:            16,
		ResetDAS:          10,
		InitialSpawnDelay: 10,
		LineClearDelay:    17,
		Countdown:         0,
		MaxoutCapped:      false,
		Keybinds: Keybinds{
			ShiftLeft:   []string{"left", "a"},
			ShiftRight:  []string{"right", "d"},
			Pushdown:    []string{"down", "s"},
			RotateLeft:  []string{"z", "j"},
			RotateRight: []string{"x", "k"},
			Restart:     []string{"enter", "r"},
			Quit:        []string{"q", "esc", "ctrl+c"},
		},
	}
}

// DefaultProfile returns the live-capture profile.
func DefaultProfile() Profile {
	return Profile{
		NoiseThreshold: 20,
		Board: BoardProfile{
			RowDivisor:     20.15,
			ShineThreshold: 30,
			ShineOffset:    Offset{X: 1.0 / 80, Y: 1.0 / 95},
			MinoPoints:     []Offset{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.3}},
		},
		Next: NextProfile{
			Columns:             8,
			Rows:                6,
			Padding:             Fractions{Left: 0.06, Top: 0.2, Right: 0.06, Bottom: 0.2},
			BrightnessThreshold: 30,
			MaxDifference:       2,
		},
		Digits: DigitProfile{
			GridSize:       8,
			PixelThreshold: 100,
			MinConfidence:  0.7,
		},
		Calibration: CalibrationProfile{
			Tolerance: 30,
			Next: BoxProfile{
				Seed:       Offset{X: 1.5, Y: 0.41},
				ExtraSeeds: []Offset{{X: 1.5, Y: 0.595}},
			},
			Level: BoxProfile{
				Seed:   Offset{X: 1.3, Y: 0.78},
				Text:   Fractions{Left: 0.4, Top: 0.48, Right: 0.76, Bottom: 0.86},
				Digits: 2,
			},
			Score: BoxProfile{
				Seed:   Offset{X: 1.3, Y: 0.18},
				Text:   Fractions{Left: 0.04, Top: 0.68, Right: 0.94, Bottom: 0.82},
				Digits: 6,
			},
			Lines: BoxProfile{
				Seed:   Offset{X: 0.05, Y: -0.125},
				Text:   Fractions{Left: 0.69, Top: 0.2, Right: 0.96, Bottom: 0.8},
				Digits: 3,
			},
		},
	}
}

// DefaultOCRConfig returns the state machine persistence constants.
func DefaultOCRConfig() OCRConfig {
	return OCRConfig{
		MultipleGames:       false,
		StartFrames:         5,
		SpawnFrames:         2,
		TopoutMillis:        500,
		ConfusionMillis:     2000,
		LimboExitFrames:     5,
		LimboTimeoutMillis:  10000,
		LimboUpdateInterval: 20,
		PushdownLimit:       50,
		MaxoutCapped:        false,
	}
}

// GeneratorProfile returns the profile for frames rendered by a generator
// rather than captured from a console: minos are drawn brighter, so the
// shine threshold is higher.
func GeneratorProfile() Profile {
	p := DefaultProfile()
	p.Board.ShineThreshold = 130
	return p
}

// Validate reports the first nonsensical value in the configuration.
func (c Config) Validate() error {
	switch {
	case c.Emulator.FPS <= 0:
		return errors.New("emulator.fps must be positive")
	case c.Emulator.MaxDAS <= 0 || c.Emulator.ResetDAS < 0 || c.Emulator.ResetDAS >= c.Emulator.MaxDAS:
		return fmt.Errorf("emulator das must satisfy 0 <= reset_das < max_das, got %d/%d", c.Emulator.ResetDAS, c.Emulator.MaxDAS)
	case c.Emulator.Countdown < 0 || c.Emulator.Countdown > 15:
		return fmt.Errorf("emulator.countdown must be in 0-15, got %d", c.Emulator.Countdown)
	case c.Profile.Board.RowDivisor < 20:
		return fmt.Errorf("profile.board.row_divisor must be at least 20, got %v", c.Profile.Board.RowDivisor)
	case len(c.Profile.Board.MinoPoints) != 2:
		return fmt.Errorf("profile.board.mino_points needs exactly 2 points, got %d", len(c.Profile.Board.MinoPoints))
	case c.Profile.Next.Columns <= 0 || c.Profile.Next.Rows <= 0:
		return errors.New("profile.next grid must be non-empty")
	case c.Profile.Digits.GridSize <= 0:
		return errors.New("profile.digits.grid_size must be positive")
	case c.Profile.Digits.MinConfidence < 0 || c.Profile.Digits.MinConfidence > 1:
		return fmt.Errorf("profile.digits.min_confidence must be in [0, 1], got %v", c.Profile.Digits.MinConfidence)
	case c.OCR.StartFrames <= 0 || c.OCR.SpawnFrames <= 0 || c.OCR.LimboExitFrames <= 0:
		return errors.New("ocr frame counts must be positive")
	case c.OCR.LimboUpdateInterval <= 0:
		return errors.New("ocr.limbo_update_interval must be positive")
	case c.Analysis.Difficulty <= 1:
		return fmt.Errorf("analysis.difficulty must be above 1, got %v", c.Analysis.Difficulty)
	}
	return nil
}

// DigitSet holds reference glyphs for each digit, drawn as rows of '#' (lit)
// and '.' (dark). All glyphs share one square size.
type DigitSet struct {
	Size   int              `yaml:"size"`
	Glyphs map[int][]string `yaml:"glyphs"`
}

// Validate checks that every digit 0-9 has a square glyph of Size rows.
func (d DigitSet) Validate() error {
	if d.Size <= 0 {
		return errors.New("digit size must be positive")
	}
	for digit := 0; digit <= 9; digit++ {
		rows, ok := d.Glyphs[digit]
		if !ok {
			return fmt.Errorf("missing glyph for digit %d", digit)
		}
		if len(rows) != d.Size {
			return fmt.Errorf("glyph %d has %d rows, expected %d", digit, len(rows), d.Size)
		}
		for i, row := range rows {
			if len(row) != d.Size {
				return fmt.Errorf("glyph %d row %d has %d columns, expected %d", digit, i, len(row), d.Size)
			}
		}
	}
	return nil
}

// Bitmap returns the glyph of digit as a row-major slice of lit flags.
func (d DigitSet) Bitmap(digit int) []bool {
	rows := d.Glyphs[digit]
	bits := make([]bool, 0, d.Size*d.Size)
	for _, row := range rows {
		for _, c := range row {
			bits = append(bits, c == '#')
		}
	}
	return bits
}
