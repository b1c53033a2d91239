package tetris

import "strings"

// Point is a cell coordinate on the board. Y grows downwards.
type Point struct {
	X, Y int
}

// Board is a 20x10 grid of color classes. The zero value is an empty board.
type Board struct {
	cells [Height][Width]ColorType
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// ParseBoard builds a board from rows of text, top row first. '.' and ' ' are
// empty, '1' primary, '2' secondary, '3' white, and any other rune is white.
// Missing rows are filled from the top so short inputs describe the bottom of
// the board.
func ParseBoard(rows ...string) *Board {
	b := NewBoard()
	offset := Height - len(rows)
	for i, row := range rows {
		for x, r := range row {
			var c ColorType
			switch r {
			case '.', ' ':
				c = ColorEmpty
			case '1':
				c = ColorPrimary
			case '2':
				c = ColorSecondary
			default:
				c = ColorWhite
			}
			b.SetAt(x, offset+i, c)
		}
	}
	return b
}

// InBounds reports whether (x, y) is on the board.
func InBounds(x, y int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height
}

// At returns the color at (x, y), or ColorEmpty when out of bounds.
func (b *Board) At(x, y int) ColorType {
	if !InBounds(x, y) {
		return ColorEmpty
	}
	return b.cells[y][x]
}

// SetAt sets the color at (x, y). Out-of-bounds coordinates are silently ignored.
func (b *Board) SetAt(x, y int, c ColorType) {
	if !InBounds(x, y) {
		return
	}
	b.cells[y][x] = c
}

// Exists reports whether the cell at (x, y) holds a mino. Out of bounds is never filled.
func (b *Board) Exists(x, y int) bool {
	return b.At(x, y) != ColorEmpty
}

// Count returns the number of filled cells.
func (b *Board) Count() int {
	n := 0
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if b.cells[y][x] != ColorEmpty {
				n++
			}
		}
	}
	return n
}

// Copy returns a deep copy of the board.
func (b *Board) Copy() *Board {
	c := *b
	return &c
}

// Equals reports whether both boards have identical colors in every cell.
func (b *Board) Equals(other *Board) bool {
	return b.cells == other.cells
}

// EqualsIgnoreColor reports whether both boards have the same filled cells.
func (b *Board) EqualsIgnoreColor(other *Board) bool {
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if b.Exists(x, y) != other.Exists(x, y) {
				return false
			}
		}
	}
	return true
}

// IsRowFull reports whether every cell in row y is filled.
func (b *Board) IsRowFull(y int) bool {
	for x := 0; x < Width; x++ {
		if !b.Exists(x, y) {
			return false
		}
	}
	return true
}

// IsRowEmpty reports whether no cell in row y is filled.
func (b *Board) IsRowEmpty(y int) bool {
	for x := 0; x < Width; x++ {
		if b.Exists(x, y) {
			return false
		}
	}
	return true
}

// FullRows returns the number of full rows without clearing them.
func (b *Board) FullRows() int {
	n := 0
	for y := 0; y < Height; y++ {
		if b.IsRowFull(y) {
			n++
		}
	}
	return n
}

// ProcessLineClears removes every full row, shifts the rows above down, and
// returns the number of rows cleared.
func (b *Board) ProcessLineClears() int {
	var kept [Height][Width]ColorType
	dst := Height - 1
	for y := Height - 1; y >= 0; y-- {
		if b.IsRowFull(y) {
			continue
		}
		kept[dst] = b.cells[y]
		dst--
	}
	cleared := dst + 1
	b.cells = kept
	return cleared
}

// ColumnHeights returns the height of the highest filled cell in each column.
func (b *Board) ColumnHeights() [Width]int {
	var heights [Width]int
	for x := 0; x < Width; x++ {
		for y := 0; y < Height; y++ {
			if b.Exists(x, y) {
				heights[x] = Height - y
				break
			}
		}
	}
	return heights
}

// AverageHeight returns the mean column height of the leftmost nine columns.
func (b *Board) AverageHeight() float64 {
	heights := b.ColumnHeights()
	sum := 0
	for x := 0; x < Width-1; x++ {
		sum += heights[x]
	}
	return float64(sum) / float64(Width-1)
}

// IsRightWellOpen reports whether the rightmost column is empty above the
// tallest of the other columns, i.e. a vertical I piece could reach the stack.
func (b *Board) IsRightWellOpen() bool {
	heights := b.ColumnHeights()
	tallest := 0
	for x := 0; x < Width-1; x++ {
		tallest = max(tallest, heights[x])
	}
	for y := Height - tallest; y < Height; y++ {
		if b.Exists(Width-1, y) {
			return false
		}
	}
	return true
}

// Subtract returns a - b cell by cell. Cells filled in b are cleared from a.
// With perfect set, every filled cell of b must also be filled in a, otherwise
// Subtract returns nil to signal that b cannot be isolated from a.
func Subtract(a, b *Board, perfect bool) *Board {
	result := NewBoard()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if !b.Exists(x, y) {
				result.cells[y][x] = a.cells[y][x]
				continue
			}
			if !a.Exists(x, y) && perfect {
				return nil
			}
		}
	}
	return result
}

// Add overlays every filled cell of other onto the board.
func (b *Board) Add(other *Board) {
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if other.Exists(x, y) {
				b.cells[y][x] = other.cells[y][x]
			}
		}
	}
}

// ConnectedComponents splits the filled cells into 4-connected components.
// Components are ordered by their first cell in row-major scan order, so the
// topmost component comes first.
func (b *Board) ConnectedComponents() []*Board {
	var visited [Height][Width]bool
	var components []*Board

	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if visited[y][x] || !b.Exists(x, y) {
				continue
			}
			component := NewBoard()
			queue := []Point{{X: x, Y: y}}
			visited[y][x] = true
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				component.cells[p.Y][p.X] = b.cells[p.Y][p.X]
				for _, d := range [4]Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := p.X+d.X, p.Y+d.Y
					if !InBounds(nx, ny) || visited[ny][nx] || !b.Exists(nx, ny) {
						continue
					}
					visited[ny][nx] = true
					queue = append(queue, Point{X: nx, Y: ny})
				}
			}
			components = append(components, component)
		}
	}
	return components
}

// Cells returns the coordinates of every filled cell in row-major order.
func (b *Board) Cells() []Point {
	var pts []Point
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if b.Exists(x, y) {
				pts = append(pts, Point{X: x, Y: y})
			}
		}
	}
	return pts
}

// String renders the board as 20 lines of '.' and color digits.
func (b *Board) String() string {
	var sb strings.Builder
	sb.Grow((Width + 1) * Height)
	for y := 0; y < Height; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < Width; x++ {
			c := b.cells[y][x]
			if c == ColorEmpty {
				sb.WriteByte('.')
			} else {
				sb.WriteByte('0' + byte(c))
			}
		}
	}
	return sb.String()
}
