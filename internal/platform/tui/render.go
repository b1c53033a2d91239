package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/nestris-ocr/internal/core"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Playfield geometry in terminal cells. Every mino is two characters wide.
const (
	minoWidth       = 2
	boardBoxWidth   = tetris.Width*minoWidth + 2
	boardBoxHeight  = tetris.Height + 2
	panelGap        = 2
	panelWidth      = 14
	PlayfieldWidth  = boardBoxWidth + panelGap + panelWidth
	PlayfieldHeight = boardBoxHeight
)

// Palette holds the two level-dependent mino colors.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
}

// levelPalettes are the NES colors, repeating every ten levels.
var levelPalettes = [10]Palette{
	{Primary: "#0058F8", Secondary: "#3CBCFC"},
	{Primary: "#00A800", Secondary: "#B8F818"},
	{Primary: "#D800CC", Secondary: "#F878F8"},
	{Primary: "#0058F8", Secondary: "#58D854"},
	{Primary: "#E40058", Secondary: "#58F898"},
	{Primary: "#58F898", Secondary: "#6888FC"},
	{Primary: "#F83800", Secondary: "#7C7C7C"},
	{Primary: "#6844FC", Secondary: "#A80020"},
	{Primary: "#0058F8", Secondary: "#F83800"},
	{Primary: "#F83800", Secondary: "#FCA044"},
}

// PaletteForLevel returns the mino colors drawn at level.
func PaletteForLevel(level int) Palette {
	if level < 0 {
		level = 0
	}
	return levelPalettes[level%len(levelPalettes)]
}

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	whiteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FCFCFC"))
)

// styleFor resolves a semantic screen color against the level palette.
func styleFor(c core.Color, p Palette) lipgloss.Style {
	switch c {
	case core.ColorDim:
		return dimStyle
	case core.ColorAccent:
		return accentStyle
	case core.ColorWarning:
		return warningStyle
	case core.ColorMinoWhite:
		return whiteStyle
	case core.ColorMinoPrimary:
		return lipgloss.NewStyle().Foreground(p.Primary)
	case core.ColorMinoSecondary:
		return lipgloss.NewStyle().Foreground(p.Secondary)
	default:
		return lipgloss.NewStyle()
	}
}

// RenderScreen converts a Screen buffer to a styled string for display.
// Groups adjacent cells with the same color to minimize ANSI escape sequences.
func RenderScreen(s *core.Screen, level int) string {
	palette := PaletteForLevel(level)
	styles := make(map[core.Color]lipgloss.Style)

	var sb strings.Builder
	sb.Grow(s.Width()*s.Height()*2 + s.Height())

	for y := range s.Height() {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < s.Width() {
			startColor := s.GetCell(x, y).Color

			var run strings.Builder
			for x < s.Width() {
				cell := s.GetCell(x, y)
				if cell.Color != startColor {
					break
				}
				run.WriteRune(cell.Rune)
				x++
			}

			style, ok := styles[startColor]
			if !ok {
				style = styleFor(startColor, palette)
				styles[startColor] = style
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}

func minoColor(c tetris.ColorType) core.Color {
	switch c {
	case tetris.ColorPrimary:
		return core.ColorMinoPrimary
	case tetris.ColorSecondary:
		return core.ColorMinoSecondary
	default:
		return core.ColorMinoWhite
	}
}

func drawMino(s *core.Screen, x, y int, c tetris.ColorType) {
	s.SetColored(x, y, '[', minoColor(c))
	s.SetColored(x+1, y, ']', minoColor(c))
}

// DrawBoard draws the board with its frame, top-left corner at (x, y).
func DrawBoard(s *core.Screen, x, y int, board *tetris.Board) {
	s.DrawBox(core.NewRect(x, y, boardBoxWidth, boardBoxHeight))
	for row := range tetris.Height {
		for col := range tetris.Width {
			sx, sy := x+1+col*minoWidth, y+1+row
			if board != nil && board.Exists(col, row) {
				drawMino(s, sx, sy, board.At(col, row))
			} else {
				s.SetColored(sx, sy, ' ', core.ColorDefault)
				s.SetColored(sx+1, sy, '.', core.ColorDim)
			}
		}
	}
}

// BoardText draws a board with its frame as plain text.
func BoardText(board *tetris.Board) string {
	s := core.NewScreen(boardBoxWidth, boardBoxHeight)
	DrawBoard(s, 0, 0, board)
	return s.String()
}

// DrawNext draws the next box, top-left corner at (x, y).
func DrawNext(s *core.Screen, x, y int, t tetris.TetrominoType) {
	box := core.NewRect(x, y, panelWidth, 6)
	s.DrawBox(box)
	s.DrawTextColored(x+2, y, " NEXT ", core.ColorAccent)
	if !t.Valid() {
		cx, cy := box.Center()
		s.DrawTextColored(cx-1, cy, "??", core.ColorWarning)
		return
	}

	cells := tetris.ShapeCells(t, 0)
	minX, maxX, minY := cells[0].X, cells[0].X, cells[0].Y
	for _, c := range cells {
		minX, maxX, minY = min(minX, c.X), max(maxX, c.X), min(minY, c.Y)
	}
	width := (maxX - minX + 1) * minoWidth
	left := x + (panelWidth-width)/2
	top := y + 2
	if t == tetris.TypeI {
		top = y + 3
	}
	for _, c := range cells {
		drawMino(s, left+(c.X-minX)*minoWidth, top+c.Y-minY, t.Color())
	}
}

// DrawStats draws level, lines, score, tetris rate and drought below the
// next box.
func DrawStats(s *core.Screen, x, y int, d display.Data) {
	stat := func(row int, label, value string) {
		s.DrawTextColored(x+1, y+row, label, core.ColorDim)
		s.DrawTextColored(x+1, y+row+1, value, core.ColorAccent)
	}
	stat(0, "SCORE", fmt.Sprintf("%06d", d.Score))
	stat(3, "LINES", fmt.Sprintf("%03d", d.Lines))
	stat(6, "LEVEL", fmt.Sprintf("%02d", d.Level))
	stat(9, "TRT", fmt.Sprintf("%d%%", int(d.TetrisRate*100+0.5)))
	stat(12, "DROUGHT", fmt.Sprintf("%d", d.Drought))
}

// DrawPlayfield draws one player: board on the left, next box and stats on
// the right. A running countdown is drawn over the board.
func DrawPlayfield(s *core.Screen, x, y int, d display.Data) {
	DrawBoard(s, x, y, d.Board)
	panelX := x + boardBoxWidth + panelGap
	DrawNext(s, panelX, y, d.Next)
	DrawStats(s, panelX, y+7, d)

	if d.Countdown > 0 {
		board := core.NewRect(x, y, boardBoxWidth, boardBoxHeight)
		cx, cy := board.Center()
		s.DrawRect(core.NewRect(x+1, cy-1, boardBoxWidth-2, 3), ' ')
		text := fmt.Sprintf("%d", d.Countdown)
		s.DrawTextColored(cx-len(text)/2, cy, text, core.ColorWarning)
	}
}
