// Package tetris models the NES Tetris playfield: the 10x20 board, the seven
// tetrominoes with their rotation tables, moveable pieces, and the
// score/level/lines bookkeeping used by both the emulator and the OCR tracker.
//
// The package has no external dependencies so it can be shared by every
// engine in the module and tested in isolation.
package tetris

import "fmt"

// Board dimensions.
const (
	Width  = 10
	Height = 20
)

// ColorType is the color class of a single board cell. NES Tetris draws every
// mino in one of three palette slots, so three classes plus empty are enough to
// reproduce any board exactly.
type ColorType uint8

const (
	ColorEmpty ColorType = iota
	ColorPrimary
	ColorSecondary
	ColorWhite
)

// String returns a short name for the color class.
func (c ColorType) String() string {
	switch c {
	case ColorEmpty:
		return "empty"
	case ColorPrimary:
		return "primary"
	case ColorSecondary:
		return "secondary"
	case ColorWhite:
		return "white"
	default:
		return "unknown"
	}
}

// TetrominoType identifies one of the seven pieces. TypeError marks a piece
// that could not be classified.
type TetrominoType uint8

// The numeric values are part of the packet format (3 bits per type).
const (
	TypeI TetrominoType = iota
	TypeJ
	TypeL
	TypeO
	TypeS
	TypeT
	TypeZ
	TypeError
)

// AllTypes lists the seven real piece types in encoding order.
var AllTypes = []TetrominoType{TypeI, TypeJ, TypeL, TypeO, TypeS, TypeT, TypeZ}

// String returns the single-letter name of the piece ("I", "J", ...).
func (t TetrominoType) String() string {
	switch t {
	case TypeI:
		return "I"
	case TypeJ:
		return "J"
	case TypeL:
		return "L"
	case TypeO:
		return "O"
	case TypeS:
		return "S"
	case TypeT:
		return "T"
	case TypeZ:
		return "Z"
	default:
		return "?"
	}
}

// Valid reports whether t is one of the seven real pieces.
func (t TetrominoType) Valid() bool {
	return t < TypeError
}

// Color returns the palette class NES Tetris uses to draw the piece.
func (t TetrominoType) Color() ColorType {
	switch t {
	case TypeI, TypeO, TypeT:
		return ColorWhite
	case TypeJ, TypeS:
		return ColorPrimary
	default:
		return ColorSecondary
	}
}

// ParseType converts a single-letter piece name into a TetrominoType.
func ParseType(s string) (TetrominoType, error) {
	for _, t := range AllTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return TypeError, fmt.Errorf("tetris: unknown piece type %q", s)
}
