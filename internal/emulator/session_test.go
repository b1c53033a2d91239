package emulator

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

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

func opcodes(ps []packet.Packet) []packet.Opcode {
	ops := make([]packet.Opcode, len(ps))
	for i, p := range ps {
		ops[i] = p.Opcode()
	}
	return ops
}

func newTestSession(clock *fakeClock, sink display.Sink, level, countdown int) (*Session, *collector) {
	col := &collector{}
	cfg := testConfig()
	cfg.Countdown = countdown
	s := NewSession(SessionOptions{
		Config:     cfg,
		StartLevel: level,
		Generator:  NewSequenceGenerator(tetris.TypeT, tetris.TypeL),
		Buffer:     packet.NewBuffer(col),
		Sink:       sink,
		Logger:     log.New(io.Discard),
		Clock:      clock.Now,
	})
	return s, col
}

func TestSessionCatchUpRunsEachFrameOnce(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestSession(clock, nil, 0, 0)
	s.Start()
	require.Equal(t, PhasePlaying, s.Phase())

	clock.Advance(time.Second)
	assert.Equal(t, 60, s.Tick().Frames)
	assert.Equal(t, 0, s.Tick().Frames, "no frames are due twice")

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 30, s.Tick().Frames)

	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 0, s.Tick().Frames)
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, s.Tick().Frames)

	assert.Equal(t, 91, s.State().Frame())
}

func TestSessionCountdown(t *testing.T) {
	clock := newFakeClock()
	var pushed []display.Data
	sink := display.SinkFunc(func(d display.Data) { pushed = append(pushed, d) })
	s, col := newTestSession(clock, sink, 18, 3)

	s.Start()
	assert.Equal(t, PhaseCountdown, s.Phase())
	assert.Equal(t, 3, s.Data().Countdown)

	clock.Advance(1500 * time.Millisecond)
	s.Tick()
	assert.Equal(t, 2, s.Data().Countdown)
	clock.Advance(500 * time.Millisecond)
	s.Tick()
	clock.Advance(time.Second)
	s.Tick()
	assert.Equal(t, PhasePlaying, s.Phase())
	assert.Zero(t, s.Tick().Frames)

	ps := col.packets(t)
	assert.Equal(t, []packet.Opcode{
		packet.OpCountdown, packet.OpCountdown, packet.OpCountdown, packet.OpCountdown, packet.OpStart,
	}, opcodes(ps))

	values := []int{}
	delays := 0
	for _, p := range ps {
		if c, ok := p.(packet.Countdown); ok {
			values = append(values, c.Value)
			delays += c.DelayMs
		}
	}
	assert.Equal(t, []int{3, 2, 1, 0}, values)
	assert.Equal(t, 3000, delays)
	assert.Equal(t, packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}, ps[4])

	require.NotEmpty(t, pushed)
	assert.Equal(t, 18, pushed[len(pushed)-1].Level)
	assert.Equal(t, tetris.TypeL, pushed[len(pushed)-1].Next)
}

func TestSessionPacketsReplayToSameGame(t *testing.T) {
	clock := newFakeClock()
	s, col := newTestSession(clock, nil, 29, 0)
	s.Start()

	for i := 0; i < 600 && s.Phase() == PhasePlaying; i++ {
		clock.Advance(50 * time.Millisecond)
		if i == 20 {
			s.RequestRecovery()
		}
		s.Tick()
	}
	require.Equal(t, PhaseEnded, s.Phase())

	ps := col.packets(t)
	ops := opcodes(ps)
	require.NotEmpty(t, ops)
	assert.Equal(t, packet.OpStart, ops[0])
	assert.Equal(t, []packet.Opcode{packet.OpFullBoard, packet.OpEnd}, ops[len(ops)-2:])
	assert.Contains(t, ops, packet.OpPlacement)
	assert.Contains(t, ops, packet.OpAbbrBoard)
	assert.Contains(t, ops, packet.OpRecovery)

	r := packet.NewReplayer()
	for _, p := range ps {
		require.NoError(t, r.Apply(p), "packet %s", p.Opcode())
	}
	assert.False(t, r.InGame())

	state := s.State()
	require.True(t, state.ToppedOut())
	assert.True(t, r.Data().Board.Equals(state.DisplayBoard()))
	assert.Equal(t, state.Status().Score, r.Status().Score)
	assert.Equal(t, state.Status().Lines, r.Status().Lines)
	assert.True(t, s.Summary().GameOver)
}

func TestSessionTopoutSendsLastPlacement(t *testing.T) {
	clock := newFakeClock()
	s, col := newTestSession(clock, nil, 29, 0)
	s.Start()
	clock.Advance(30 * time.Second)
	s.Tick()
	require.Equal(t, PhaseEnded, s.Phase())

	ps := col.packets(t)
	ops := opcodes(ps)
	require.GreaterOrEqual(t, len(ops), 3)
	assert.Equal(t, []packet.Opcode{packet.OpPlacement, packet.OpFullBoard, packet.OpEnd}, ops[len(ops)-3:])

	r := packet.NewReplayer()
	placements := 0
	for _, p := range ps {
		require.NoError(t, r.Apply(p), "packet %s", p.Opcode())
		if p.Opcode() == packet.OpPlacement {
			placements++
		}
	}
	want := s.State().Status().Placements()
	assert.Positive(t, want)
	assert.Equal(t, want, placements)
	assert.Equal(t, want, r.Status().Placements())
}

func TestSessionPlacementDelaysFollowEmulatedTime(t *testing.T) {
	clock := newFakeClock()
	s, col := newTestSession(clock, nil, 29, 0)
	s.Start()

	// One large tick runs the whole game at once.
	clock.Advance(30 * time.Second)
	s.Tick()
	require.Equal(t, PhaseEnded, s.Phase())

	total := 0
	for _, p := range col.packets(t) {
		if timed, ok := p.(packet.Timed); ok {
			total += timed.Delay()
		}
	}
	frames := s.State().Frame()
	want := frames * 1000 / 60
	assert.InDelta(t, want, total, 20, "delays sum to the emulated duration, not the tick duration")
}

func TestSessionRestartAndStop(t *testing.T) {
	clock := newFakeClock()
	s, col := newTestSession(clock, nil, 0, 0)
	s.Start()
	clock.Advance(time.Second)
	s.Tick()

	s.Restart(19)
	assert.Equal(t, PhasePlaying, s.Phase())
	assert.Equal(t, 19, s.Data().Level)

	s.Stop()
	assert.Equal(t, PhaseEnded, s.Phase())
	clock.Advance(time.Second)
	assert.Zero(t, s.Tick().Frames)

	ops := opcodes(col.packets(t))
	assert.Equal(t, packet.OpStart, ops[0])
	assert.Equal(t, packet.OpEnd, ops[len(ops)-1])

	starts, ends := 0, 0
	for _, op := range ops {
		switch op {
		case packet.OpStart:
			starts++
		case packet.OpEnd:
			ends++
		}
	}
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, ends)
}
