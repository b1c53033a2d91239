package core

// Color is a semantic foreground color for a screen cell. The mino colors are
// resolved against the level palette by the renderer.
type Color uint8

// Predefined colors.
const (
	ColorDefault Color = iota
	ColorDim
	ColorAccent
	ColorWarning
	ColorMinoWhite
	ColorMinoPrimary
	ColorMinoSecondary
)
