package tetris

// shape lists the occupied cells of one rotation inside the piece's local
// matrix. Rotations are table driven to match the NES rotation system exactly.
type shape []Point

// shapes holds the rotation tables indexed by TetrominoType. Coordinates are
// (column, row) inside a 4x4 (I) or 3x3-in-4x4 matrix.
var shapes = [...][]shape{
	TypeI: {
		{{0, 2}, {1, 2}, {2, 2}, {3, 2}},
		{{2, 0}, {2, 1}, {2, 2}, {2, 3}},
	},
	TypeJ: {
		{{1, 1}, {2, 1}, {3, 1}, {3, 2}},
		{{2, 0}, {2, 1}, {1, 2}, {2, 2}},
		{{1, 0}, {1, 1}, {2, 1}, {3, 1}},
		{{2, 0}, {3, 0}, {2, 1}, {2, 2}},
	},
	TypeL: {
		{{1, 1}, {2, 1}, {3, 1}, {1, 2}},
		{{1, 0}, {2, 0}, {2, 1}, {2, 2}},
		{{3, 0}, {1, 1}, {2, 1}, {3, 1}},
		{{2, 0}, {2, 1}, {2, 2}, {3, 2}},
	},
	TypeO: {
		{{1, 1}, {2, 1}, {1, 2}, {2, 2}},
	},
	TypeS: {
		{{2, 1}, {3, 1}, {1, 2}, {2, 2}},
		{{2, 0}, {2, 1}, {3, 1}, {3, 2}},
	},
	TypeT: {
		{{1, 1}, {2, 1}, {3, 1}, {2, 2}},
		{{2, 0}, {1, 1}, {2, 1}, {2, 2}},
		{{2, 0}, {1, 1}, {2, 1}, {3, 1}},
		{{2, 0}, {2, 1}, {3, 1}, {2, 2}},
	},
	TypeZ: {
		{{1, 1}, {2, 1}, {2, 2}, {3, 2}},
		{{3, 0}, {2, 1}, {3, 1}, {2, 2}},
	},
}

// Spawn pose shared by every piece. The I piece spawns one row higher because
// its horizontal rotation sits on the third matrix row.
const (
	SpawnX  = 3
	SpawnY  = -1
	SpawnYI = -2
)

// NumRotations returns how many distinct rotations the piece has.
func NumRotations(t TetrominoType) int {
	if !t.Valid() {
		return 0
	}
	return len(shapes[t])
}

// normalizeRotation maps any integer onto the piece's rotation range.
func normalizeRotation(t TetrominoType, r int) int {
	n := NumRotations(t)
	if n == 0 {
		return 0
	}
	r %= n
	if r < 0 {
		r += n
	}
	return r
}

// ShapeCells returns a copy of the local cells for the given type and rotation.
func ShapeCells(t TetrominoType, rotation int) []Point {
	if !t.Valid() {
		return nil
	}
	s := shapes[t][normalizeRotation(t, rotation)]
	out := make([]Point, len(s))
	copy(out, s)
	return out
}
