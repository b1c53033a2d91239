package ocr

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/nestris-ocr/internal/analysis"
	"github.com/vovakirdan/nestris-ocr/internal/config"
	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

const frameTime = time.Second / 60

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type collector struct {
	mu      sync.Mutex
	batches [][]byte
}

func (c *collector) SendPackets(batch []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]byte(nil), batch...))
	return nil
}

func (c *collector) packets(t *testing.T) []packet.Packet {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []packet.Packet
	for _, b := range c.batches {
		_, ps, err := packet.Disassemble(b, false)
		require.NoError(t, err)
		all = append(all, ps...)
	}
	return all
}

func countOpcode(ps []packet.Packet, op packet.Opcode) int {
	n := 0
	for _, p := range ps {
		if p.Opcode() == op {
			n++
		}
	}
	return n
}

func lastOf[T packet.Packet](t *testing.T, ps []packet.Packet) T {
	t.Helper()
	for i := len(ps) - 1; i >= 0; i-- {
		if p, ok := ps[i].(T); ok {
			return p
		}
	}
	var zero T
	t.Fatalf("no %T packet in %d packets", zero, len(ps))
	return zero
}

type fakeFrame struct {
	board *tetris.Board
	noise float64
	next  tetris.TetrominoType
	level int
	score int
	lines int
}

// newFrame draws pieces over stack on a clean level 18 picture.
func newFrame(stack *tetris.Board, next tetris.TetrominoType, pieces ...tetris.MoveableTetromino) *fakeFrame {
	b := tetris.NewBoard()
	if stack != nil {
		b = stack.Copy()
	}
	for _, p := range pieces {
		p.BlitToBoard(b)
	}
	return &fakeFrame{board: b, noise: 5, next: next, level: 18}
}

func (f *fakeFrame) BinaryBoard() *tetris.Board     { return f.board.Copy() }
func (f *fakeFrame) Noise() float64                 { return f.noise }
func (f *fakeFrame) NextType() tetris.TetrominoType { return f.next }
func (f *fakeFrame) Level() int                     { return f.level }
func (f *fakeFrame) Score() int                     { return f.score }
func (f *fakeFrame) Lines() int                     { return f.lines }

func (f *fakeFrame) BoardOnlyTetromino() (tetris.MoveableTetromino, bool) {
	return tetris.ExtractFromBoard(f.board)
}

// statusOf returns the status of the named event.
func statusOf(t *testing.T, statuses []EventStatus, name string) EventStatus {
	t.Helper()
	for _, st := range statuses {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("no event %q", name)
	return EventStatus{}
}

type harness struct {
	m     *Machine
	clock *fakeClock
	out   *collector
}

func newHarness(t *testing.T, tweak func(*MachineOptions)) *harness {
	t.Helper()
	clock := newFakeClock()
	out := &collector{}
	opts := MachineOptions{
		Config:         config.DefaultOCRConfig(),
		NoiseThreshold: 20,
		Buffer:         packet.NewBuffer(out),
		Logger:         log.New(io.Discard),
		Clock:          clock.Now,
	}
	if tweak != nil {
		tweak(&opts)
	}
	return &harness{m: NewMachine(opts), clock: clock, out: out}
}

// step feeds f for n frames, advancing the clock by d before each, and
// returns the last report.
func (h *harness) step(f FrameFeatures, n int, d time.Duration) FrameReport {
	var r FrameReport
	for range n {
		h.clock.Advance(d)
		r = h.m.AdvanceFrame(f)
	}
	return r
}

// until feeds f until a transition happens, at most limit frames.
func (h *harness) until(t *testing.T, f FrameFeatures, limit int, d time.Duration) (Transition, int) {
	t.Helper()
	for i := 1; i <= limit; i++ {
		h.clock.Advance(d)
		if r := h.m.AdvanceFrame(f); r.Transition != nil {
			return *r.Transition, i
		}
	}
	t.Fatalf("no transition within %d frames", limit)
	return Transition{}, 0
}

// start plays the spawn frames of a game with current piece cur.
func (h *harness) start(t *testing.T, cur, next tetris.TetrominoType) {
	t.Helper()
	r := h.step(newFrame(nil, next, tetris.FromSpawnPose(cur)), 5, frameTime)
	require.NotNil(t, r.Transition)
	require.Equal(t, StatePieceDropping, h.m.State())
}

// resume puts the machine into state id tracking the game described by rec.
func (h *harness) resume(rec packet.Recovery, id StateID) *GameTracker {
	g := h.m.env.global.StartGame(rec.StartLevel, rec.Current, rec.Next, h.clock.Now())
	g.SetRecovery(rec)
	h.m.state = newState(id, h.m.env)
	return g
}

func TestStartGameNeedsFiveCleanFrames(t *testing.T) {
	h := newHarness(t, nil)
	f := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))

	for i := range 4 {
		r := h.step(f, 1, frameTime)
		assert.Nil(t, r.Transition, "frame %d", i)
		assert.Equal(t, StateBeforeGame, h.m.State())
	}
	r := h.step(f, 1, frameTime)
	require.NotNil(t, r.Transition)
	assert.Equal(t, Transition{Frame: 4, From: StateBeforeGame, To: StatePieceDropping, Event: "start-game"}, *r.Transition)

	g := h.m.Global().Game()
	require.NotNil(t, g)
	assert.Equal(t, 18, g.StartLevel())
	assert.Equal(t, tetris.TypeT, g.CurrentType())
	assert.Equal(t, tetris.TypeL, g.NextType())
	assert.Equal(t, []packet.Packet{packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}}, h.out.packets(t))
}

func TestStartGameRejects(t *testing.T) {
	spawnT := tetris.FromSpawnPose(tetris.TypeT)
	noisy := newFrame(nil, tetris.TypeL, spawnT)
	noisy.noise = 50
	noLevel := newFrame(nil, tetris.TypeL, spawnT)
	noLevel.level = -1

	tests := []struct {
		name string
		f    *fakeFrame
	}{
		{"noisy picture", noisy},
		{"unreadable level", noLevel},
		{"unreadable next", newFrame(nil, tetris.TypeError, spawnT)},
		{"piece far below spawn", newFrame(nil, tetris.TypeL, spawnT.MoveBy(0, 0, 10))},
		{"stack under the piece", newFrame(tetris.ParseBoard("1111....11"), tetris.TypeL, spawnT)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			r := h.step(tt.f, 10, frameTime)
			assert.False(t, r.Statuses[0].PreconditionMet)
			assert.Equal(t, StateBeforeGame, h.m.State())
		})
	}
}

func TestStartGameCountResetsOnNoise(t *testing.T) {
	h := newHarness(t, nil)
	clean := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))
	noisy := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))
	noisy.noise = 50

	h.step(clean, 4, frameTime)
	h.step(noisy, 1, frameTime)
	h.step(clean, 4, frameTime)
	assert.Equal(t, StateBeforeGame, h.m.State())
	h.step(clean, 1, frameTime)
	assert.Equal(t, StatePieceDropping, h.m.State())
}

type stubEvent struct {
	name string
	met  bool
	next StateID
}

func (e *stubEvent) Name() string                                 { return e.name }
func (e *stubEvent) Persistence() Persistence                     { return SingleFrame() }
func (e *stubEvent) Precondition(FrameFeatures) bool              { return e.met }
func (e *stubEvent) Trigger(FrameFeatures, time.Time) StateID     { return e.next }

func TestFirstFiringEventWins(t *testing.T) {
	s := &baseState{id: StatePieceDropping}
	s.register(&stubEvent{name: "quiet", met: false, next: StateGameEnd})
	s.register(&stubEvent{name: "first", met: true, next: StateGameLimbo})
	s.register(&stubEvent{name: "second", met: true, next: StateGameEnd})

	next, fired, statuses := s.Advance(newFrame(nil, tetris.TypeT), time.Now())
	assert.True(t, fired)
	assert.Equal(t, StateGameLimbo, next)
	assert.Equal(t, []EventStatus{
		{Name: "quiet"},
		{Name: "first", PreconditionMet: true, PersistenceMet: true, Triggered: true},
		{Name: "second", PreconditionMet: true, PersistenceMet: true},
	}, statuses)
	assert.Equal(t, "quiet:n/n first:y/y! second:y/y", formatStatuses(statuses))
}

func TestActivePieceIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, tetris.TypeT, tetris.TypeL)

	falling := tetris.NewMoveable(tetris.TypeT, 1, 3, 6)
	h.step(newFrame(nil, tetris.TypeL, falling), 3, frameTime)

	ps := h.out.packets(t)
	assert.Equal(t, 1, countOpcode(ps, packet.OpAbbrBoard), "unchanged frames send nothing")
	abbr := lastOf[packet.AbbrBoard](t, ps)
	assert.Equal(t, falling.Pose(), abbr.Pose)

	data := h.m.Global().DisplayData()
	assert.True(t, data.Board.EqualsIgnoreColor(falling.Board()))
	assert.Equal(t, tetris.TypeL, data.Next)
}

func TestUnknownBoardIsSentInFull(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, tetris.TypeT, tetris.TypeL)

	// An O where a T should be.
	wrong := newFrame(nil, tetris.TypeL, tetris.NewMoveable(tetris.TypeO, 0, 3, 5))
	h.step(wrong, 3, frameTime)

	ps := h.out.packets(t)
	assert.Equal(t, 1, countOpcode(ps, packet.OpFullBoard))
	full := lastOf[packet.FullBoard](t, ps)
	assert.True(t, full.Board.EqualsIgnoreColor(wrong.board))
}

var (
	landedT = tetris.NewMoveable(tetris.TypeT, 0, 3, 17)
	spawnL  = tetris.FromSpawnPose(tetris.TypeL)
)

func TestRegularSpawnPlacesPiece(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		pushdown int
	}{
		{"no pushdown", 0, 0},
		{"pushdown from score", 7, 7},
		{"implausible score ignored", 60, 0},
		{"unreadable score", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.start(t, tetris.TypeT, tetris.TypeL)

			for y := range 6 {
				r := h.step(newFrame(nil, tetris.TypeO, tetris.NewMoveable(tetris.TypeT, 0, 3, y)), 1, frameTime)
				require.Nil(t, r.Transition)
			}
			h.step(newFrame(nil, tetris.TypeO, landedT), 2, frameTime)

			spawn := newFrame(nil, tetris.TypeS, landedT, spawnL)
			spawn.score = tt.score
			r := h.step(spawn, 1, frameTime)
			require.Nil(t, r.Transition, "two frames are needed")
			r = h.step(spawn, 1, frameTime)
			require.NotNil(t, r.Transition)
			assert.Equal(t, "regular-spawn", r.Transition.Event)
			assert.Equal(t, StatePieceDropping, r.Transition.To)

			g := h.m.Global().Game()
			assert.Equal(t, 1, g.Placements())
			assert.True(t, g.StableBoard().EqualsIgnoreColor(landedT.Board()))
			assert.Equal(t, tetris.TypeL, g.CurrentType())
			assert.Equal(t, tetris.TypeS, g.NextType())
			assert.Equal(t, tt.pushdown, g.Status().Score)

			placement := lastOf[packet.Placement](t, h.out.packets(t))
			assert.True(t, tetris.FromPose(tetris.TypeT, placement.Pose).Equals(landedT))
			assert.Equal(t, tetris.TypeS, placement.NextNext)
			assert.Equal(t, tt.pushdown, placement.Pushdown)

			// The new piece is tracked right away.
			h.step(newFrame(landedT.Board(), tetris.TypeS, spawnL.MoveBy(0, 0, 1)), 1, frameTime)
			abbr := lastOf[packet.AbbrBoard](t, h.out.packets(t))
			assert.Equal(t, spawnL.MoveBy(0, 0, 1).Pose(), abbr.Pose)
		})
	}
}

func TestRegularSpawnNeedsTrackedFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, tetris.TypeT, tetris.TypeL)

	spawn := newFrame(nil, tetris.TypeS, landedT, spawnL)
	r := h.step(spawn, 2, frameTime)
	assert.Nil(t, r.Transition)
	assert.False(t, statusOf(t, r.Statuses, "regular-spawn").PreconditionMet)
}

func TestLineClearSpawn(t *testing.T) {
	h := newHarness(t, nil)
	stack := tetris.ParseBoard("1111....11")
	h.resume(packet.Recovery{
		StartLevel: 18, Level: 18,
		Current: tetris.TypeI, Next: tetris.TypeT,
		Board: stack,
	}, StatePieceDropping)

	for y := -2; y < 4; y++ {
		h.step(newFrame(stack, tetris.TypeO, tetris.NewMoveable(tetris.TypeI, 0, 4, y)), 1, frameTime)
	}
	h.step(newFrame(stack, tetris.TypeO, tetris.NewMoveable(tetris.TypeI, 0, 4, 17)), 1, frameTime)
	// Line clear animation.
	h.step(newFrame(tetris.ParseBoard("11......11"), tetris.TypeO), 3, frameTime)

	spawn := newFrame(nil, tetris.TypeO, tetris.FromSpawnPose(tetris.TypeT))
	spawn.score = tetris.LineClearPoints(1, 18) + 6
	spawn.lines = 1
	tr, _ := h.until(t, spawn, 2, frameTime)
	assert.Equal(t, "line-clear-spawn", tr.Event)

	g := h.m.Global().Game()
	assert.Zero(t, g.StableBoard().Count())
	assert.Equal(t, tetris.TypeT, g.CurrentType())
	assert.Equal(t, tetris.TypeO, g.NextType())
	st := g.Status()
	assert.Equal(t, 1, st.Lines)
	assert.Equal(t, 766, st.Score)

	placement := lastOf[packet.Placement](t, h.out.packets(t))
	assert.Equal(t, 6, placement.Pushdown)
}

func TestLineClearSpawnNeedsMatchingBoard(t *testing.T) {
	h := newHarness(t, nil)
	stack := tetris.ParseBoard("1111....11")
	h.resume(packet.Recovery{
		StartLevel: 18, Level: 18,
		Current: tetris.TypeI, Next: tetris.TypeT,
		Board: stack,
	}, StatePieceDropping)

	for y := -2; y < 4; y++ {
		h.step(newFrame(stack, tetris.TypeO, tetris.NewMoveable(tetris.TypeI, 0, 4, y)), 1, frameTime)
	}
	// A stray mino survives the supposed clear.
	spawn := newFrame(tetris.ParseBoard("1........."), tetris.TypeO, tetris.FromSpawnPose(tetris.TypeT))
	r := h.step(spawn, 3, frameTime)
	assert.Nil(t, r.Transition)
	assert.False(t, statusOf(t, r.Statuses, "line-clear-spawn").PreconditionMet)
}

func TestLineClearSpawnToleratesInterlacing(t *testing.T) {
	tests := []struct {
		name  string
		extra []tetris.Point
		fires bool
	}{
		{"one smeared mino", []tetris.Point{{X: 5, Y: 2}}, true},
		{"two smeared minos", []tetris.Point{{X: 5, Y: 2}, {X: 5, Y: 3}}, true},
		{"too many minos", []tetris.Point{{X: 5, Y: 2}, {X: 5, Y: 3}, {X: 5, Y: 4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			stack := tetris.ParseBoard("1111....11")
			h.resume(packet.Recovery{
				StartLevel: 18, Level: 18,
				Current: tetris.TypeI, Next: tetris.TypeT,
				Board: stack,
			}, StatePieceDropping)
			for y := -2; y < 4; y++ {
				h.step(newFrame(stack, tetris.TypeO, tetris.NewMoveable(tetris.TypeI, 0, 4, y)), 1, frameTime)
			}

			spawn := newFrame(nil, tetris.TypeO, tetris.FromSpawnPose(tetris.TypeT))
			for _, p := range tt.extra {
				spawn.board.SetAt(p.X, p.Y, tetris.ColorPrimary)
			}
			spawn.lines = 1
			r := h.step(spawn, 2, frameTime)
			if !tt.fires {
				assert.Nil(t, r.Transition)
				assert.False(t, statusOf(t, r.Statuses, "line-clear-spawn").PreconditionMet)
				return
			}
			require.NotNil(t, r.Transition)
			assert.Equal(t, "line-clear-spawn", r.Transition.Event)
			g := h.m.Global().Game()
			assert.Equal(t, 1, g.Status().Lines)
			assert.Zero(t, g.StableBoard().Count())
			assert.Equal(t, tetris.TypeT, g.CurrentType())
		})
	}
}

// columnStack fills column 0 top to bottom.
func columnStack() *tetris.Board {
	b := tetris.NewBoard()
	for y := range tetris.Height {
		b.SetAt(0, y, tetris.ColorPrimary)
	}
	return b
}

func TestTopoutEndsGame(t *testing.T) {
	h := newHarness(t, nil)
	stack := columnStack()
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeI, Next: tetris.TypeT, Board: stack, Score: 4200}, StatePieceDropping)

	topped := newFrame(stack, tetris.TypeT, tetris.FromSpawnPose(tetris.TypeT))
	tr, n := h.until(t, topped, 20, 100*time.Millisecond)
	assert.Equal(t, "topout", tr.Event)
	assert.Equal(t, StateGameEnd, tr.To)
	assert.Equal(t, 7, n, "topout needs more than 500ms")

	ps := h.out.packets(t)
	assert.Equal(t, 1, countOpcode(ps, packet.OpFullBoard))
	assert.Equal(t, packet.End{}, ps[len(ps)-1], "end is sent on the topout frame")
	assert.Nil(t, h.m.Global().Game())

	r := h.step(topped, 3, frameTime)
	assert.Nil(t, r.Transition, "single game per session")
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd))

	summary, ok := h.m.Global().Summary()
	require.True(t, ok)
	assert.Equal(t, 4200, summary.Score)
	assert.True(t, summary.Board.EqualsIgnoreColor(topped.board))
}

func TestTopoutWithEmptyRowsBelow(t *testing.T) {
	h := newHarness(t, nil)
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StatePieceDropping)

	// Six minos over the O spawn cells and nothing below them.
	topped := newFrame(nil, tetris.TypeT)
	for _, p := range []tetris.Point{{X: 4, Y: 0}, {X: 5, Y: 0}, {X: 6, Y: 0}, {X: 7, Y: 0}, {X: 4, Y: 1}, {X: 5, Y: 1}} {
		topped.board.SetAt(p.X, p.Y, tetris.ColorPrimary)
	}
	tr, _ := h.until(t, topped, 20, 100*time.Millisecond)
	assert.Equal(t, "topout", tr.Event)
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd))
}

func TestGameEndReturnsToStartWithMultipleGames(t *testing.T) {
	h := newHarness(t, func(o *MachineOptions) { o.Config.MultipleGames = true })
	stack := columnStack()
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeI, Next: tetris.TypeT, Board: stack}, StatePieceDropping)
	h.m.Finish()
	require.Equal(t, StateGameEnd, h.m.State())

	r := h.step(newFrame(nil, tetris.TypeL), 1, frameTime)
	require.NotNil(t, r.Transition)
	assert.Equal(t, "game-restart", r.Transition.Event)
	assert.Equal(t, StateBeforeGame, h.m.State())
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd))

	h.start(t, tetris.TypeT, tetris.TypeL)
	assert.Equal(t, 2, h.m.Global().Games())
}

func TestConfusionEntersLimbo(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, tetris.TypeT, tetris.TypeL)

	garbage := newFrame(tetris.ParseBoard("1.1.1....."), tetris.TypeL)
	tr, n := h.until(t, garbage, 40, 250*time.Millisecond)
	assert.Equal(t, "confusion", tr.Event)
	assert.Equal(t, StateGameLimbo, tr.To)
	assert.Equal(t, 10, n)
}

func TestLimboPrediction(t *testing.T) {
	h := newHarness(t, func(o *MachineOptions) { o.Config.LimboUpdateInterval = 1 })
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Lines: 12, Score: 1000, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)
	limbo := h.m.state.(*gameLimboState)

	f := newFrame(nil, tetris.TypeL)
	f.lines, f.score = 14, 1000+tetris.LineClearPoints(2, 18)+10
	h.step(f, 1, frameTime)
	assert.Equal(t, tetris.SmartGameStatus{StartLevel: 18, Level: 18, Lines: 14, Score: 2910}, limbo.Predicted())

	wild := newFrame(nil, tetris.TypeL)
	wild.level, wild.lines, wild.score = 5, 90, 999999
	h.step(wild, 1, frameTime)
	assert.Equal(t, tetris.SmartGameStatus{StartLevel: 18, Level: 18, Lines: 14, Score: 2910}, limbo.Predicted())

	up := newFrame(nil, tetris.TypeL)
	up.level, up.lines, up.score = 19, 14, 2910
	h.step(up, 1, frameTime)
	assert.Equal(t, 19, limbo.Predicted().Level)
}

func TestLimboReportsPrediction(t *testing.T) {
	h := newHarness(t, func(o *MachineOptions) { o.Config.LimboUpdateInterval = 1 })
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Lines: 12, Score: 1000, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	f := newFrame(tetris.ParseBoard(
		"1.........",
		"11.1111111",
		"1111111.11",
	), tetris.TypeZ)
	f.lines, f.score = 14, 2900
	h.step(f, 30, frameTime)
	require.Equal(t, StateGameLimbo, h.m.State())

	ps := h.out.packets(t)
	assert.Equal(t, 1, countOpcode(ps, packet.OpFullState), "unchanged frames send nothing")
	full := lastOf[packet.FullState](t, ps)
	assert.True(t, full.Board.EqualsIgnoreColor(f.board))
	assert.Equal(t, tetris.TypeZ, full.Next)
	assert.Equal(t, 14, full.Lines)
	assert.Equal(t, 2900, full.Score)

	data := h.m.Global().DisplayData()
	assert.Equal(t, 14, data.Lines)
	assert.Equal(t, 2900, data.Score)
	assert.Equal(t, 19, data.Board.Count())

	h.m.Finish()
	summary, ok := h.m.Global().Summary()
	require.True(t, ok)
	assert.Equal(t, 14, summary.Lines)
	assert.Equal(t, 2900, summary.Score)
}

func TestLimboSkipsPredictionWhenCapped(t *testing.T) {
	h := newHarness(t, func(o *MachineOptions) {
		o.Config.LimboUpdateInterval = 1
		o.Config.MaxoutCapped = true
	})
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Lines: 12, Score: 1000, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	f := newFrame(tetris.ParseBoard("11.1111111"), tetris.TypeZ)
	f.lines, f.score = 14, 2900
	h.step(f, 5, frameTime)

	full := lastOf[packet.FullState](t, h.out.packets(t))
	assert.Equal(t, 12, full.Lines)
	assert.Equal(t, 1000, full.Score)
	assert.Equal(t, 9, full.Board.Count())
}

func TestLimboRecovery(t *testing.T) {
	h := newHarness(t, nil)
	stack := tetris.ParseBoard("11111.1111")
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Lines: 12, Score: 1000, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	first := newFrame(stack, tetris.TypeS, tetris.NewMoveable(tetris.TypeJ, 0, 3, 2))
	first.score = 1200
	r := h.step(first, 1, frameTime)
	assert.Nil(t, r.Transition, "one frame is not enough")
	r = h.step(first, 1, frameTime)
	assert.Nil(t, r.Transition, "the piece must move")

	second := newFrame(stack, tetris.TypeS, tetris.NewMoveable(tetris.TypeJ, 0, 3, 3))
	second.score = 1200
	r = h.step(second, 1, frameTime)
	require.NotNil(t, r.Transition)
	assert.Equal(t, "recovery", r.Transition.Event)
	assert.Equal(t, StatePieceDropping, r.Transition.To)

	rec := lastOf[packet.Recovery](t, h.out.packets(t))
	assert.Equal(t, tetris.TypeJ, rec.Current)
	assert.Equal(t, tetris.TypeS, rec.Next)
	assert.Equal(t, 1200, rec.Score)
	assert.Equal(t, 18, rec.Level)
	assert.Equal(t, 12, rec.Lines)
	assert.True(t, rec.Board.EqualsIgnoreColor(stack))

	g := h.m.Global().Game()
	assert.True(t, g.StableBoard().EqualsIgnoreColor(stack))
	assert.Equal(t, tetris.TypeJ, g.CurrentType())
}

func TestLimboRecoveryRejectsLowerScore(t *testing.T) {
	h := newHarness(t, nil)
	stack := tetris.ParseBoard("11111.1111")
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Score: 1000, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	for y := 2; y < 6; y++ {
		f := newFrame(stack, tetris.TypeS, tetris.NewMoveable(tetris.TypeJ, 0, 3, y))
		f.score = 800
		r := h.step(f, 1, frameTime)
		assert.Nil(t, r.Transition)
	}
}

func TestLimboExitOnNoise(t *testing.T) {
	h := newHarness(t, nil)
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	menu := newFrame(nil, tetris.TypeError)
	menu.noise = 50
	tr, n := h.until(t, menu, 10, frameTime)
	assert.Equal(t, "limbo-exit", tr.Event)
	assert.Equal(t, StateGameEnd, tr.To)
	assert.Equal(t, 5, n)
	assert.Equal(t, packet.End{}, lastOf[packet.End](t, h.out.packets(t)))
	assert.Nil(t, h.m.Global().Game())
}

func TestLimboTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeI, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	tr, n := h.until(t, newFrame(nil, tetris.TypeL), 10, 3*time.Second)
	assert.Equal(t, "limbo-timeout", tr.Event)
	assert.Equal(t, 5, n)
}

func TestRestartFromLimbo(t *testing.T) {
	h := newHarness(t, nil)
	g := h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeO, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)
	g.PlacePiece(tetris.NewMoveable(tetris.TypeO, 0, 0, 17), tetris.TypeL, 0, h.clock.Now())

	fresh := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))
	fresh.level = 0
	tr, n := h.until(t, fresh, 10, frameTime)
	assert.Equal(t, "restart-game", tr.Event)
	assert.Equal(t, 5, n)

	ps := h.out.packets(t)
	require.GreaterOrEqual(t, len(ps), 2)
	assert.Equal(t, packet.End{}, ps[len(ps)-2])
	assert.Equal(t, packet.Start{Level: 0, Current: tetris.TypeT, Next: tetris.TypeL}, ps[len(ps)-1])
	assert.Equal(t, 2, h.m.Global().Games())
}

func TestRestartWhilePieceDropping(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, tetris.TypeT, tetris.TypeL)
	for y := range 6 {
		h.step(newFrame(nil, tetris.TypeO, tetris.NewMoveable(tetris.TypeT, 0, 3, y)), 1, frameTime)
	}
	h.step(newFrame(nil, tetris.TypeO, landedT), 2, frameTime)
	h.step(newFrame(nil, tetris.TypeS, landedT, spawnL), 2, frameTime)
	require.Equal(t, 1, h.m.Global().Game().Placements())

	// The console was reset to a new game on level 0.
	fresh := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))
	fresh.level = 0
	tr, n := h.until(t, fresh, 10, frameTime)
	assert.Equal(t, "restart-game", tr.Event)
	assert.Equal(t, StatePieceDropping, tr.From)
	assert.Equal(t, StatePieceDropping, tr.To)
	assert.Equal(t, 5, n)

	ps := h.out.packets(t)
	require.GreaterOrEqual(t, len(ps), 2)
	assert.Equal(t, packet.End{}, ps[len(ps)-2])
	assert.Equal(t, packet.Start{Level: 0, Current: tetris.TypeT, Next: tetris.TypeL}, ps[len(ps)-1])
	assert.Equal(t, 2, h.m.Global().Games())
	assert.Zero(t, h.m.Global().Game().Placements())
}

func TestNoRestartAfterPerfectClear(t *testing.T) {
	h := newHarness(t, nil)
	g := h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeO, Next: tetris.TypeT, Board: tetris.NewBoard()}, StatePieceDropping)
	g.PlacePiece(tetris.NewMoveable(tetris.TypeO, 0, 0, 17), tetris.TypeL, 0, h.clock.Now())

	lone := newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT))
	lone.score = 4200
	r := h.step(lone, 8, frameTime)
	assert.False(t, statusOf(t, r.Statuses, "restart-game").PreconditionMet)
	assert.Equal(t, 1, h.m.Global().Games())
}

func TestRestartNeedsPlacements(t *testing.T) {
	h := newHarness(t, nil)
	h.resume(packet.Recovery{StartLevel: 18, Level: 18, Current: tetris.TypeO, Next: tetris.TypeT, Board: tetris.NewBoard()}, StateGameLimbo)

	r := h.step(newFrame(nil, tetris.TypeL, tetris.FromSpawnPose(tetris.TypeT)), 8, frameTime)
	assert.Nil(t, r.Transition)
	assert.False(t, r.Statuses[0].PreconditionMet)
}

func TestFinishEndsRunningGame(t *testing.T) {
	var pushed []display.Data
	h := newHarness(t, func(o *MachineOptions) {
		o.Sink = display.SinkFunc(func(d display.Data) { pushed = append(pushed, d) })
	})
	h.start(t, tetris.TypeT, tetris.TypeL)
	require.NotEmpty(t, pushed)
	assert.Equal(t, tetris.TypeL, pushed[len(pushed)-1].Next)
	assert.Equal(t, 18, pushed[len(pushed)-1].Level)

	h.m.Finish()
	assert.Equal(t, StateGameEnd, h.m.State())
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd))

	h.m.Finish()
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd), "nothing left to end")
}

type recordingAnalyzer struct {
	positions  []analysis.Position
	placements []tetris.MoveableTetromino
	closed     atomic.Bool
}

func (a *recordingAnalyzer) OnNewPosition(pos analysis.Position) error {
	a.positions = append(a.positions, pos)
	return nil
}

func (a *recordingAnalyzer) OnPlacement(mt tetris.MoveableTetromino) error {
	a.placements = append(a.placements, mt)
	return nil
}

func (a *recordingAnalyzer) Close() { a.closed.Store(true) }

func TestAnalyzerFollowsGame(t *testing.T) {
	a := &recordingAnalyzer{}
	var startLevel int
	h := newHarness(t, func(o *MachineOptions) {
		o.AnalyzerFactory = func(level int) Analyzer {
			startLevel = level
			return a
		}
	})
	h.start(t, tetris.TypeT, tetris.TypeL)
	for y := range 6 {
		h.step(newFrame(nil, tetris.TypeO, tetris.NewMoveable(tetris.TypeT, 0, 3, y)), 1, frameTime)
	}
	h.step(newFrame(nil, tetris.TypeS, landedT, spawnL), 2, frameTime)

	assert.Equal(t, 18, startLevel)
	require.Len(t, a.positions, 2)
	assert.Equal(t, tetris.TypeT, a.positions[0].Current)
	assert.Equal(t, tetris.TypeL, a.positions[0].Next)
	assert.Zero(t, a.positions[0].Board.Count())
	assert.Equal(t, tetris.TypeL, a.positions[1].Current)
	assert.True(t, a.positions[1].Board.EqualsIgnoreColor(landedT.Board()))
	require.Len(t, a.placements, 1)
	assert.True(t, a.placements[0].Equals(landedT))

	h.m.Finish()
	assert.Eventually(t, a.closed.Load, time.Second, time.Millisecond)
}

// hangingAnalyzer waits in Close like an analyzer with an oracle request
// that never returns.
type hangingAnalyzer struct {
	recordingAnalyzer
	release chan struct{}
}

func (a *hangingAnalyzer) Close() {
	<-a.release
	a.recordingAnalyzer.Close()
}

func TestSlowAnalyzerCloseDoesNotStallFrames(t *testing.T) {
	a := &hangingAnalyzer{release: make(chan struct{})}
	defer close(a.release)
	h := newHarness(t, func(o *MachineOptions) {
		o.AnalyzerFactory = func(int) Analyzer { return a }
	})
	h.start(t, tetris.TypeT, tetris.TypeL)

	done := make(chan struct{})
	go func() {
		h.m.Finish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Finish waited for the analyzer to close")
	}
	assert.Equal(t, 1, countOpcode(h.out.packets(t), packet.OpEnd))
	assert.False(t, a.closed.Load())
}
