package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnPose(t *testing.T) {
	tests := []struct {
		typ   TetrominoType
		cells []Point
	}{
		{TypeT, []Point{{4, 0}, {5, 0}, {6, 0}, {5, 1}}},
		{TypeI, []Point{{3, 0}, {4, 0}, {5, 0}, {6, 0}}},
		{TypeO, []Point{{4, 0}, {5, 0}, {4, 1}, {5, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			mt := FromSpawnPose(tt.typ)
			assert.ElementsMatch(t, tt.cells, mt.Cells())
			assert.True(t, mt.IsInBounds())
		})
	}
}

func TestRotationWraps(t *testing.T) {
	mt := FromSpawnPose(TypeS)
	assert.Equal(t, 1, mt.MoveBy(1, 0, 0).Rotation)
	assert.Equal(t, 0, mt.MoveBy(2, 0, 0).Rotation)
	assert.Equal(t, 1, mt.MoveBy(-1, 0, 0).Rotation)
	assert.Equal(t, 3, FromSpawnPose(TypeT).MoveBy(-1, 0, 0).Rotation)
}

func TestExtractSoundness(t *testing.T) {
	for _, typ := range AllTypes {
		for r := 0; r < NumRotations(typ); r++ {
			for x := -2; x < Width; x++ {
				for y := -2; y < Height; y++ {
					mt := NewMoveable(typ, r, x, y)
					if !mt.IsInBounds() {
						continue
					}
					got, ok := ExtractFromBoard(mt.Board())
					require.True(t, ok, "extract %s", mt)
					assert.Equal(t, typ, got.Type)
					assert.True(t, got.Equals(mt), "extract %s got %s", mt, got)
				}
			}
		}
	}
}

func TestExtractRejectsNonPieces(t *testing.T) {
	tests := []struct {
		name string
		rows []string
	}{
		{"three minos", []string{"111......."}},
		{"five minos", []string{"11111....."}},
		{"two pieces", []string{"1111.1111."}},
		{"disconnected four", []string{"1.1.1.1..."}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ExtractFromBoard(ParseBoard(tt.rows...))
			assert.False(t, ok)
			assert.Equal(t, TypeError, ExtractType(ParseBoard(tt.rows...)))
		})
	}
}

func TestIsValidPlacement(t *testing.T) {
	b := ParseBoard(
		"..........",
		"1111..1111",
	)
	floor := NewMoveable(TypeO, 0, 3, 17)
	assert.True(t, floor.IsValidPlacement(b), "O resting in the gap")

	floating := NewMoveable(TypeO, 0, 3, 10)
	assert.False(t, floating.IsValidPlacement(b))

	onStack := NewMoveable(TypeO, 0, 0, 16)
	assert.True(t, onStack.IsValidPlacement(b))

	overlapping := NewMoveable(TypeO, 0, 0, 17)
	assert.False(t, overlapping.IsValidPlacement(b))
}

func TestFitsRejectsMinosAboveBoard(t *testing.T) {
	b := NewBoard()
	spawn := FromSpawnPose(TypeT)
	assert.True(t, spawn.Fits(b))

	rotated := spawn.MoveBy(1, 0, 0)
	assert.True(t, rotated.IsLegal(b), "above the top is legal")
	assert.False(t, rotated.Fits(b), "but does not fit")

	vertical := FromSpawnPose(TypeI).MoveBy(1, 0, 0)
	assert.False(t, vertical.Fits(b))
	assert.True(t, vertical.MoveBy(0, 0, 2).Fits(b))
}

func TestKickToValidPlacement(t *testing.T) {
	b := NewBoard()
	// One row too high: (0,-1) is tried after (1,0) and (-1,0), both still
	// floating, then (0,1) lands it.
	mt := NewMoveable(TypeO, 0, 3, 16)
	kicked, ok := mt.KickToValidPlacement(b)
	require.True(t, ok)
	assert.Equal(t, 17, kicked.Y)
	assert.Equal(t, 3, kicked.X)

	far := NewMoveable(TypeO, 0, 3, 5)
	same, ok := far.KickToValidPlacement(b)
	assert.False(t, ok)
	assert.Equal(t, far, same)
}

func TestMoveIntoBounds(t *testing.T) {
	mt := NewMoveable(TypeI, 0, -3, -4).MoveIntoBounds()
	assert.True(t, mt.IsInBounds())
	assert.Equal(t, -2, mt.Y)
	assert.Equal(t, 0, mt.X)
}

func TestTetrisNotation(t *testing.T) {
	tests := []struct {
		mt       MoveableTetromino
		expected string
	}{
		{FromSpawnPose(TypeT), "T-567"},
		{NewMoveable(TypeI, 1, 7, 10), "I-0"},
		{NewMoveable(TypeI, 0, 6, 10), "I-7890"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.mt.TetrisNotation())
	}
}

func TestPoseEncoding(t *testing.T) {
	tests := []Pose{
		{R: 0, X: 3, Y: -1},
		{R: 3, X: -2, Y: -2},
		{R: 1, X: 13, Y: 29},
		{R: 2, X: 7, Y: 17},
	}
	for _, p := range tests {
		v, err := EncodePose(p)
		require.NoError(t, err)
		assert.Less(t, v, uint16(1<<11))
		assert.Equal(t, p, DecodePose(v))
	}

	_, err := EncodePose(Pose{R: 0, X: 14, Y: 0})
	assert.ErrorIs(t, err, ErrInvalidPose)
}

func TestLowestAndHighestY(t *testing.T) {
	mt := FromSpawnPose(TypeT)
	assert.Equal(t, 1, mt.LowestY())
	assert.Equal(t, 0, mt.HighestY())
}
