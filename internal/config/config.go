// Package config provides YAML-based configuration for the emulator, the
// capture profile used by the vision pipeline, and the OCR state machine.
//
// Every tuned constant of the capture setup lives in the Profile so that a
// different console, capture card or camera angle only needs a new YAML file.
package config

import "time"

// Config is the complete configuration file.
type Config struct {
	Emulator EmulatorConfig `yaml:"emulator"`
	Profile  Profile        `yaml:"profile"`
	OCR      OCRConfig      `yaml:"ocr"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// EmulatorConfig contains the timing constants of the emulator.
type EmulatorConfig struct {
	FPS               int      `yaml:"fps"`
	MaxDAS            int      `yaml:"max_das"`
	ResetDAS          int      `yaml:"reset_das"`
	InitialSpawnDelay int      `yaml:"initial_spawn_delay"`
	LineClearDelay    int      `yaml:"line_clear_delay"`
	Countdown         int      `yaml:"countdown"` // Seconds of 3-2-1 before the first frame, 0 disables
	MaxoutCapped      bool     `yaml:"maxout_capped"`
	Keybinds          Keybinds `yaml:"keybinds"`
}

// Keybinds maps each controller action to terminal key names.
type Keybinds struct {
	ShiftLeft   []string `yaml:"shift_left"`
	ShiftRight  []string `yaml:"shift_right"`
	Pushdown    []string `yaml:"pushdown"`
	RotateLeft  []string `yaml:"rotate_left"`
	RotateRight []string `yaml:"rotate_right"`
	Restart     []string `yaml:"restart"`
	Quit        []string `yaml:"quit"`
}

// Offset is a pair of fractions relative to some reference size.
type Offset struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Fractions selects part of a rectangle by fractional edges.
type Fractions struct {
	Left   float64 `yaml:"left"`
	Top    float64 `yaml:"top"`
	Right  float64 `yaml:"right"`
	Bottom float64 `yaml:"bottom"`
}

// Profile is the capture profile: every empirically tuned sample position and
// threshold used to read a frame.
type Profile struct {
	NoiseThreshold float64            `yaml:"noise_threshold"`
	Board          BoardProfile       `yaml:"board"`
	Next           NextProfile        `yaml:"next"`
	Digits         DigitProfile       `yaml:"digits"`
	Calibration    CalibrationProfile `yaml:"calibration"`
}

// BoardProfile describes where minos are sampled inside the board rectangle.
type BoardProfile struct {
	// RowDivisor is the board height in cells; slightly above 20 because the
	// captured border adds a few pixels below the last row.
	RowDivisor float64 `yaml:"row_divisor"`
	// ShineThreshold is the brightness above which the block-shine pixel
	// counts as a mino. Live capture uses about 30, rendered frames 130.
	ShineThreshold float64 `yaml:"shine_threshold"`
	// ShineOffset is subtracted from the cell center, in fractions of the
	// board height.
	ShineOffset Offset `yaml:"shine_offset"`
	// MinoPoints are the two interior sample points compared for noise, in
	// fractions of the cell size relative to the cell center.
	MinoPoints []Offset `yaml:"mino_points"`
}

// NextProfile describes the next-piece sampling grid.
type NextProfile struct {
	Columns             int       `yaml:"columns"`
	Rows                int       `yaml:"rows"`
	Padding             Fractions `yaml:"padding"`
	BrightnessThreshold float64   `yaml:"brightness_threshold"`
	MaxDifference       int       `yaml:"max_difference"`
}

// DigitProfile configures digit bitmap extraction and acceptance.
type DigitProfile struct {
	GridSize       int     `yaml:"grid_size"`
	PixelThreshold float64 `yaml:"pixel_threshold"`
	MinConfidence  float64 `yaml:"min_confidence"`
}

// BoxProfile locates one secondary box relative to the board rectangle.
type BoxProfile struct {
	// Seed is the floodfill start, relative to the board rectangle.
	Seed Offset `yaml:"seed"`
	// ExtraSeeds are further floodfill starts whose fills join the first.
	ExtraSeeds []Offset `yaml:"extra_seeds,omitempty"`
	// Text is the part of the floodfilled box that holds the digits.
	Text Fractions `yaml:"text"`
	// Digits is the number of digits in the box.
	Digits int `yaml:"digits"`
}

// CalibrationProfile configures floodfill calibration.
type CalibrationProfile struct {
	Tolerance int        `yaml:"tolerance"`
	Next      BoxProfile `yaml:"next"`
	Level     BoxProfile `yaml:"level"`
	Score     BoxProfile `yaml:"score"`
	Lines     BoxProfile `yaml:"lines"`
}

// OCRConfig holds the persistence constants of the OCR state machine.
type OCRConfig struct {
	MultipleGames       bool `yaml:"multiple_games"`
	StartFrames         int  `yaml:"start_frames"`
	SpawnFrames         int  `yaml:"spawn_frames"`
	TopoutMillis        int  `yaml:"topout_ms"`
	ConfusionMillis     int  `yaml:"confusion_ms"`
	LimboExitFrames     int  `yaml:"limbo_exit_frames"`
	LimboTimeoutMillis  int  `yaml:"limbo_timeout_ms"`
	LimboUpdateInterval int  `yaml:"limbo_update_interval"`
	PushdownLimit       int  `yaml:"pushdown_limit"`
	MaxoutCapped        bool `yaml:"maxout_capped"`
}

// TopoutWindow returns the topout persistence window.
func (c OCRConfig) TopoutWindow() time.Duration {
	return time.Duration(c.TopoutMillis) * time.Millisecond
}

// ConfusionWindow returns the confusion persistence window.
func (c OCRConfig) ConfusionWindow() time.Duration {
	return time.Duration(c.ConfusionMillis) * time.Millisecond
}

// LimboTimeout returns how long limbo waits for recovery.
func (c OCRConfig) LimboTimeout() time.Duration {
	return time.Duration(c.LimboTimeoutMillis) * time.Millisecond
}

// AnalysisConfig configures the live move-evaluation oracle.
type AnalysisConfig struct {
	OracleURL string `yaml:"oracle_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Difficulty is the base of the placement score curve; higher punishes
	// a gap to the best move harder.
	Difficulty float64 `yaml:"difficulty"`
}

// Timeout returns the per-request oracle timeout.
func (c AnalysisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
