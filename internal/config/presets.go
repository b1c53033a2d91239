package config

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/nestris-ocr/internal/core"
)

// LevelPreset names a common NES start level.
type LevelPreset string

const (
	PresetEasy       LevelPreset = "easy"       // Level 0
	PresetNormal     LevelPreset = "normal"     // Level 9
	PresetHard       LevelPreset = "hard"       // Level 18
	PresetExpert     LevelPreset = "expert"     // Level 19
	PresetKillscreen LevelPreset = "killscreen" // Level 29
)

// ParseLevelPreset parses a preset name case-insensitively.
func ParseLevelPreset(s string) (LevelPreset, error) {
	switch p := LevelPreset(strings.ToLower(strings.TrimSpace(s))); p {
	case PresetEasy, PresetNormal, PresetHard, PresetExpert, PresetKillscreen:
		return p, nil
	default:
		return "", fmt.Errorf("unknown level preset %q", s)
	}
}

// StartLevel returns the start level of the preset.
func (p LevelPreset) StartLevel() int {
	switch p {
	case PresetNormal:
		return 9
	case PresetHard:
		return 18
	case PresetExpert:
		return 19
	case PresetKillscreen:
		return 29
	default:
		return 0
	}
}

// ClampStartLevel restricts a start level to the selectable range 0-29.
func ClampStartLevel(level int) int {
	return core.Clamp(level, 0, 29)
}
