package tetris

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPose is returned when a pose does not fit the packet encoding range.
var ErrInvalidPose = errors.New("tetris: pose out of encodable range")

// Pose is the compact (rotation, x, y) triple sent over the wire. The piece
// type is implied by context.
type Pose struct {
	R, X, Y int
}

// MoveableTetromino is a piece with a rotation and a translation of its local
// matrix on the board.
type MoveableTetromino struct {
	Type     TetrominoType
	Rotation int
	X, Y     int
}

// NewMoveable returns a piece at the given pose with the rotation normalized.
func NewMoveable(t TetrominoType, rotation, x, y int) MoveableTetromino {
	return MoveableTetromino{Type: t, Rotation: normalizeRotation(t, rotation), X: x, Y: y}
}

// FromSpawnPose returns the piece as NES Tetris spawns it.
func FromSpawnPose(t TetrominoType) MoveableTetromino {
	y := SpawnY
	if t == TypeI {
		y = SpawnYI
	}
	return NewMoveable(t, 0, SpawnX, y)
}

// FromPose rebuilds a piece from its type and wire pose.
func FromPose(t TetrominoType, p Pose) MoveableTetromino {
	return NewMoveable(t, p.R, p.X, p.Y)
}

// Pose returns the wire pose of the piece.
func (m MoveableTetromino) Pose() Pose {
	return Pose{R: m.Rotation, X: m.X, Y: m.Y}
}

// Cells returns the absolute board coordinates of the four minos.
func (m MoveableTetromino) Cells() []Point {
	local := ShapeCells(m.Type, m.Rotation)
	for i := range local {
		local[i].X += m.X
		local[i].Y += m.Y
	}
	return local
}

// MoveBy returns the piece rotated by dr and translated by (dx, dy).
func (m MoveableTetromino) MoveBy(dr, dx, dy int) MoveableTetromino {
	return NewMoveable(m.Type, m.Rotation+dr, m.X+dx, m.Y+dy)
}

// IsInBounds reports whether every mino is on the board.
func (m MoveableTetromino) IsInBounds() bool {
	for _, p := range m.Cells() {
		if !InBounds(p.X, p.Y) {
			return false
		}
	}
	return true
}

// IsInBoundsIgnoreTop is like IsInBounds but allows minos above the board,
// which happens right after spawn.
func (m MoveableTetromino) IsInBoundsIgnoreTop() bool {
	for _, p := range m.Cells() {
		if p.X < 0 || p.X >= Width || p.Y >= Height {
			return false
		}
	}
	return true
}

// IntersectsBoard reports whether any mino overlaps a filled cell.
func (m MoveableTetromino) IntersectsBoard(b *Board) bool {
	for _, p := range m.Cells() {
		if b.Exists(p.X, p.Y) {
			return true
		}
	}
	return false
}

// IsLegal reports whether the piece may occupy its current pose on the board,
// counting minos above the board as legal.
func (m MoveableTetromino) IsLegal(b *Board) bool {
	return m.IsInBoundsIgnoreTop() && !m.IntersectsBoard(b)
}

// Fits reports whether every mino is on the board and free. The console only
// lets a falling piece move, rotate or drop into a pose that fits.
func (m MoveableTetromino) Fits(b *Board) bool {
	return m.IsInBounds() && !m.IntersectsBoard(b)
}

// IsValidPlacement reports whether the piece is a resting placement: legal
// where it is, and unable to move one row further down.
func (m MoveableTetromino) IsValidPlacement(b *Board) bool {
	if !m.IsLegal(b) {
		return false
	}
	below := m.MoveBy(0, 0, 1)
	return !below.IsInBounds() || below.IntersectsBoard(b)
}

// BlitToBoard writes the piece's minos onto the board in the piece's color.
func (m MoveableTetromino) BlitToBoard(b *Board) {
	c := m.Type.Color()
	for _, p := range m.Cells() {
		b.SetAt(p.X, p.Y, c)
	}
}

// Board returns a fresh board containing only this piece.
func (m MoveableTetromino) Board() *Board {
	b := NewBoard()
	m.BlitToBoard(b)
	return b
}

// kickOffsets is the order in which kicks are tried. Recorded puzzle content
// depends on this exact order.
var kickOffsets = []Point{
	{1, 0}, {-1, 0}, {0, -1}, {0, 1},
	{1, -1}, {-1, -1}, {1, 1}, {-1, 1},
}

// KickToValidPlacement returns the piece itself if it is already a valid
// placement, otherwise the first kicked pose that is. The second return value
// is false when no kick works; the piece is then returned unchanged.
func (m MoveableTetromino) KickToValidPlacement(b *Board) (MoveableTetromino, bool) {
	if m.IsValidPlacement(b) {
		return m, true
	}
	for _, o := range kickOffsets {
		k := m.MoveBy(0, o.X, o.Y)
		if k.IsValidPlacement(b) {
			return k, true
		}
	}
	return m, false
}

// MoveIntoBounds shifts the piece horizontally and vertically until every
// mino is on the board.
func (m MoveableTetromino) MoveIntoBounds() MoveableTetromino {
	for _, p := range m.Cells() {
		switch {
		case p.X < 0:
			return m.MoveBy(0, 1, 0).MoveIntoBounds()
		case p.X >= Width:
			return m.MoveBy(0, -1, 0).MoveIntoBounds()
		case p.Y < 0:
			return m.MoveBy(0, 0, 1).MoveIntoBounds()
		case p.Y >= Height:
			return m.MoveBy(0, 0, -1).MoveIntoBounds()
		}
	}
	return m
}

// LowestY returns the largest row index occupied by the piece.
func (m MoveableTetromino) LowestY() int {
	lowest := -1 << 31
	for _, p := range m.Cells() {
		lowest = max(lowest, p.Y)
	}
	return lowest
}

// HighestY returns the smallest row index occupied by the piece.
func (m MoveableTetromino) HighestY() int {
	highest := 1 << 31
	for _, p := range m.Cells() {
		highest = min(highest, p.Y)
	}
	return highest
}

// Equals reports whether both pieces occupy exactly the same cells with the
// same type. Rotations that render identically compare equal.
func (m MoveableTetromino) Equals(other MoveableTetromino) bool {
	if m.Type != other.Type {
		return false
	}
	a, b := m.Cells(), other.Cells()
	for _, p := range a {
		found := false
		for _, q := range b {
			if p == q {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TetrisNotation returns the piece in "T-456" style: the type followed by the
// 1-based columns it occupies, with column ten written as 0.
func (m MoveableTetromino) TetrisNotation() string {
	var cols [Width]bool
	for _, p := range m.Cells() {
		if p.X >= 0 && p.X < Width {
			cols[p.X] = true
		}
	}
	var sb strings.Builder
	sb.WriteString(m.Type.String())
	sb.WriteByte('-')
	for x := 0; x < Width; x++ {
		if cols[x] {
			sb.WriteByte('0' + byte((x+1)%10))
		}
	}
	return sb.String()
}

// Encode returns the TRXXYY form: type index, rotation, and two-digit x and y
// offset by 10 so negative spawn rows stay positive.
func (m MoveableTetromino) Encode() string {
	return fmt.Sprintf("%d%d%02d%02d", m.Type, m.Rotation, m.X+10, m.Y+10)
}

// String returns a debug form of the piece.
func (m MoveableTetromino) String() string {
	return fmt.Sprintf("%s r%d (%d,%d)", m.Type, m.Rotation, m.X, m.Y)
}

// ExtractFromBoard returns the piece whose four minos are exactly the filled
// cells of b. It returns false if b does not hold exactly one tetromino.
func ExtractFromBoard(b *Board) (MoveableTetromino, bool) {
	cells := b.Cells()
	if len(cells) != 4 {
		return MoveableTetromino{}, false
	}
	for _, t := range AllTypes {
		for r := 0; r < NumRotations(t); r++ {
			local := shapes[t][r]
			// Align the template's first cell with the board's first cell; both
			// lists are in row-major order.
			first := firstInScanOrder(local)
			dx, dy := cells[0].X-first.X, cells[0].Y-first.Y
			mt := NewMoveable(t, r, dx, dy)
			if boardMatchesPiece(b, mt) {
				return mt, true
			}
		}
	}
	return MoveableTetromino{}, false
}

// ExtractType returns the type of the single piece on b, or TypeError.
func ExtractType(b *Board) TetrominoType {
	mt, ok := ExtractFromBoard(b)
	if !ok {
		return TypeError
	}
	return mt.Type
}

func firstInScanOrder(pts shape) Point {
	best := pts[0]
	for _, p := range pts[1:] {
		if p.Y < best.Y || (p.Y == best.Y && p.X < best.X) {
			best = p
		}
	}
	return best
}

func boardMatchesPiece(b *Board, mt MoveableTetromino) bool {
	for _, p := range mt.Cells() {
		if !b.Exists(p.X, p.Y) {
			return false
		}
	}
	return true
}

// EncodePose packs a pose into 11 bits: 2 rotation, 4 x+2, 5 y+2.
func EncodePose(p Pose) (uint16, error) {
	if p.R < 0 || p.R > 3 || p.X < -2 || p.X > 13 || p.Y < -2 || p.Y > 29 {
		return 0, fmt.Errorf("%w: %+v", ErrInvalidPose, p)
	}
	return uint16(p.R)<<9 | uint16(p.X+2)<<5 | uint16(p.Y+2), nil
}

// DecodePose unpacks an 11-bit pose produced by EncodePose.
func DecodePose(v uint16) Pose {
	return Pose{
		R: int(v>>9) & 0x3,
		X: int(v>>5)&0xF - 2,
		Y: int(v)&0x1F - 2,
	}
}
