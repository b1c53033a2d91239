package tetris

// MaxoutScore is the largest score the NES can display.
const MaxoutScore = 999999

// lineClearPoints is the base reward per number of lines cleared at once.
var lineClearPoints = [5]int{0, 40, 100, 300, 1200}

// LineClearPoints returns the score for clearing n lines at the given level.
func LineClearPoints(n, level int) int {
	if n < 0 || n > 4 {
		return 0
	}
	return lineClearPoints[n] * (level + 1)
}

// TransitionLines returns how many lines must be cleared before the first
// level increase when starting on startLevel.
func TransitionLines(startLevel int) int {
	switch {
	case startLevel <= 9:
		return (startLevel + 1) * 10
	case startLevel <= 15:
		return 100
	case startLevel <= 19:
		return (startLevel - 5) * 10
	default:
		return 200
	}
}

// SmartGameStatus tracks level, lines and score with NES level progression.
type SmartGameStatus struct {
	StartLevel int
	Level      int
	Lines      int
	Score      int
}

// NewSmartGameStatus returns the status at the start of a game.
func NewSmartGameStatus(startLevel int) *SmartGameStatus {
	return &SmartGameStatus{StartLevel: startLevel, Level: startLevel}
}

// OnLineClear applies n cleared lines. The level increases once the
// transition is reached and every ten lines after that, and the reward uses
// the level after any increase.
func (s *SmartGameStatus) OnLineClear(n int) {
	if n <= 0 {
		return
	}
	before := s.Lines
	s.Lines += n
	if s.Lines >= TransitionLines(s.StartLevel) && s.Lines/10 > before/10 {
		s.Level++
	}
	s.Score += LineClearPoints(n, s.Level)
}

// OnPushdown adds already computed pushdown points.
func (s *SmartGameStatus) OnPushdown(points int) {
	if points > 0 {
		s.Score += points
	}
}

// DisplayScore returns the score as the NES would show it when capped.
func (s *SmartGameStatus) DisplayScore(capped bool) int {
	if capped && s.Score > MaxoutScore {
		return MaxoutScore
	}
	return s.Score
}

// Copy returns an independent copy.
func (s *SmartGameStatus) Copy() *SmartGameStatus {
	c := *s
	return &c
}

// StatusSnapshot records the status after one placement.
type StatusSnapshot struct {
	Level       int
	Lines       int
	Score       int
	TetrisRate  float64
	Drought     int
	LinesByType [5]int
}

// MemoryGameStatus extends SmartGameStatus with per-game statistics: tetris
// rate, I-piece drought, and a history of snapshots, one per placement.
type MemoryGameStatus struct {
	SmartGameStatus

	placements  int
	drought     int
	linesByType [5]int
	history     []StatusSnapshot
}

// NewMemoryGameStatus returns a status with statistics tracking.
func NewMemoryGameStatus(startLevel int) *MemoryGameStatus {
	return &MemoryGameStatus{SmartGameStatus: SmartGameStatus{StartLevel: startLevel, Level: startLevel}}
}

// OnLineClear applies cleared lines and records the clear size.
func (s *MemoryGameStatus) OnLineClear(n int) {
	if n > 0 && n <= 4 {
		s.linesByType[n] += n
	}
	s.SmartGameStatus.OnLineClear(n)
}

// OnPlacement records a locked piece of the given type.
func (s *MemoryGameStatus) OnPlacement(t TetrominoType) {
	s.placements++
	if t == TypeI {
		s.drought = 0
	} else {
		s.drought++
	}
	s.history = append(s.history, s.Snapshot())
}

// Placements returns the number of locked pieces so far.
func (s *MemoryGameStatus) Placements() int {
	return s.placements
}

// Drought returns the number of placements since the last I piece.
func (s *MemoryGameStatus) Drought() int {
	return s.drought
}

// TetrisRate returns the share of cleared lines that came from tetrises.
func (s *MemoryGameStatus) TetrisRate() float64 {
	if s.Lines == 0 {
		return 0
	}
	return float64(s.linesByType[4]) / float64(s.Lines)
}

// Snapshot returns the current statistics.
func (s *MemoryGameStatus) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Level:       s.Level,
		Lines:       s.Lines,
		Score:       s.Score,
		TetrisRate:  s.TetrisRate(),
		Drought:     s.drought,
		LinesByType: s.linesByType,
	}
}

// History returns the snapshot taken after each placement.
func (s *MemoryGameStatus) History() []StatusSnapshot {
	return s.history
}
