package packet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

func TestEncodedLengths(t *testing.T) {
	board := tetris.ParseBoard("1.2.3.....")
	tests := []struct {
		packet  Packet
		content int
	}{
		{Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}, 14},
		{End{}, 0},
		{Placement{DelayMs: 120, NextNext: tetris.TypeI, Pose: tetris.Pose{R: 1, X: 3, Y: 17}, Pushdown: 6}, 30},
		{FullBoard{DelayMs: 16, Board: board}, 412},
		{AbbrBoard{DelayMs: 16, Pose: tetris.Pose{R: 0, X: 3, Y: -1}}, 23},
		{Recovery{StartLevel: 18, Current: tetris.TypeS, Next: tetris.TypeZ, Board: board, Score: 999999, Level: 19, Lines: 130, Countdown: 0}, 468},
		{FullState{DelayMs: 16, Board: board, Next: tetris.TypeO, Level: 19, Lines: 131, Score: 812345}, 465},
		{Countdown{DelayMs: 1000, Value: 3}, 16},
	}

	for _, tt := range tests {
		t.Run(tt.packet.Opcode().String(), func(t *testing.T) {
			enc, err := Encode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, OpcodeBits+tt.content, enc.Len())
			n, ok := ContentBits(tt.packet.Opcode())
			require.True(t, ok)
			assert.Equal(t, tt.content, n)
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	board := tetris.ParseBoard(
		"...3......",
		"2222222.11",
	)
	packets := []Packet{
		Countdown{DelayMs: 0, Value: 3},
		Countdown{DelayMs: 1000, Value: 0},
		Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL},
		AbbrBoard{DelayMs: 33, Pose: tetris.Pose{R: 2, X: 4, Y: 6}},
		Placement{DelayMs: 4095, NextNext: tetris.TypeZ, Pose: tetris.Pose{R: 0, X: 3, Y: 17}, Pushdown: 15},
		FullBoard{DelayMs: 17, Board: board},
		Recovery{StartLevel: 29, Current: tetris.TypeI, Next: tetris.TypeO, Board: board, Score: 1 << 25, Level: 255, Lines: 65535, Countdown: 15},
		FullState{DelayMs: 33, Board: board, Next: tetris.TypeS, Level: 30, Lines: 301, Score: 1234567},
		End{},
	}

	var asm Assembler
	for _, p := range packets {
		require.NoError(t, asm.Add(p))
	}
	stream, err := asm.Bytes(1)
	require.NoError(t, err)

	player, decoded, err := Disassemble(stream, true)
	require.NoError(t, err)
	assert.Equal(t, 1, player)
	require.Len(t, decoded, len(packets))

	for i, p := range packets {
		switch want := p.(type) {
		case FullBoard:
			got := decoded[i].(FullBoard)
			assert.Equal(t, want.DelayMs, got.DelayMs)
			assert.True(t, want.Board.Equals(got.Board))
		case Recovery:
			got := decoded[i].(Recovery)
			assert.True(t, want.Board.Equals(got.Board))
			want.Board, got.Board = nil, nil
			assert.Equal(t, want, got)
		case FullState:
			got := decoded[i].(FullState)
			assert.True(t, want.Board.Equals(got.Board))
			want.Board, got.Board = nil, nil
			assert.Equal(t, want, got)
		default:
			assert.Equal(t, p, decoded[i])
		}
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
	}{
		{"pushdown", Placement{Pushdown: MaxPushdown + 1}},
		{"delay", Countdown{DelayMs: MaxDelay + 1}},
		{"countdown", Countdown{Value: 16}},
		{"negative level", Start{Level: -1}},
		{"pose", AbbrBoard{Pose: tetris.Pose{X: 20}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.packet)
			assert.Error(t, err)
		})
	}

	_, err := Encode(AbbrBoard{Pose: tetris.Pose{Y: 40}})
	assert.True(t, errors.Is(err, tetris.ErrInvalidPose))
}

func TestDisassembleErrors(t *testing.T) {
	// Opcode 15 has no schema.
	_, _, err := Disassemble([]byte{0xF0}, false)
	assert.ErrorIs(t, err, ErrUnknownOpcode)

	// A start header with no content.
	_, _, err = Disassemble([]byte{0x20}, false)
	assert.ErrorIs(t, err, ErrShortPacket)

	// An empty stream has no terminator.
	_, _, err = Disassemble(nil, false)
	assert.ErrorIs(t, err, ErrShortPacket)

	// A lone terminator is an empty stream.
	_, packets, err := Disassemble([]byte{0x00}, false)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestBufferSendsBatchesInOrder(t *testing.T) {
	var batches [][]byte
	buf := NewBuffer(SenderFunc(func(b []byte) error {
		batches = append(batches, b)
		return nil
	}))

	require.NoError(t, buf.SendBufferedPackets())
	assert.Empty(t, batches, "empty buffer must not send")

	require.NoError(t, buf.BufferPacket(Start{Level: 0, Current: tetris.TypeI, Next: tetris.TypeJ}))
	require.NoError(t, buf.BufferPacket(Countdown{DelayMs: 5, Value: 0}))
	assert.Equal(t, 2, buf.Pending())
	require.NoError(t, buf.SendBufferedPackets())
	assert.Equal(t, 0, buf.Pending())

	require.NoError(t, buf.BufferPacket(End{}))
	require.NoError(t, buf.SendBufferedPackets())

	require.Len(t, batches, 2)
	_, first, err := Disassemble(batches[0], false)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, OpStart, first[0].Opcode())
	assert.Equal(t, OpCountdown, first[1].Opcode())

	_, second, err := Disassemble(batches[1], false)
	require.NoError(t, err)
	assert.Equal(t, []Packet{End{}}, second)
}

func TestBufferSenderError(t *testing.T) {
	boom := errors.New("boom")
	buf := NewBuffer(SenderFunc(func([]byte) error { return boom }))
	require.NoError(t, buf.BufferPacket(End{}))
	assert.ErrorIs(t, buf.SendBufferedPackets(), boom)
}

func TestTimeDeltaDoesNotAccumulateRounding(t *testing.T) {
	start := time.Unix(0, 0)
	td := NewTimeDelta(start)

	total := 0
	for i := 1; i <= 3; i++ {
		total += td.Delta(start.Add(time.Duration(i) * 10400 * time.Microsecond))
	}
	assert.Equal(t, 31, total, "sum of deltas tracks rounded elapsed time")

	td = NewTimeDelta(start)
	assert.Equal(t, MaxDelay, td.Delta(start.Add(5*time.Second)))
	assert.Equal(t, 5000-MaxDelay, td.Delta(start.Add(5*time.Second)))
	assert.Equal(t, 0, td.Delta(start.Add(5*time.Second)))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := NewChannelSession("a", 4)
	b := NewChannelSession("b", 4)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Count())

	require.NoError(t, hub.SendPackets([]byte{1}))
	b.Close()
	require.NoError(t, hub.SendPackets([]byte{2}))
	assert.Equal(t, 1, hub.Count(), "closed sessions are dropped on send")

	hub.Close("game over")
	require.NoError(t, hub.SendPackets([]byte{3}), "sends after close are ignored")

	var got []Event
	for len(a.Events()) > 0 {
		got = append(got, <-a.Events())
	}
	assert.Equal(t, []Event{
		BatchEvent{Seq: 1, Data: []byte{1}},
		BatchEvent{Seq: 2, Data: []byte{2}},
		ClosedEvent{Reason: "game over"},
	}, got)
}

func TestChannelSessionDropsOldest(t *testing.T) {
	s := NewChannelSession("viewer", 1)
	s.Send(BatchEvent{Seq: 1})
	s.Send(BatchEvent{Seq: 2})
	assert.Equal(t, BatchEvent{Seq: 2}, <-s.Events())

	s.Close()
	s.Close()
	s.Send(BatchEvent{Seq: 3})
	assert.Empty(t, s.Events())
}

func TestReplayerFoldsGame(t *testing.T) {
	r := NewReplayer()
	assert.False(t, r.InGame())

	var timeline []display.Data
	var asm Assembler
	for _, p := range []Packet{
		Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeI},
		AbbrBoard{DelayMs: 100, Pose: tetris.Pose{R: 0, X: 3, Y: 5}},
		Placement{DelayMs: 400, NextNext: tetris.TypeO, Pose: tetris.Pose{R: 0, X: 3, Y: 17}, Pushdown: 7},
		Placement{DelayMs: 500, NextNext: tetris.TypeS, Pose: tetris.Pose{R: 1, X: 7, Y: 16}},
		End{},
	} {
		require.NoError(t, asm.Add(p))
	}
	stream, err := asm.Bytes(-1)
	require.NoError(t, err)

	err = r.ReplayStream(stream, func(_ Packet, d display.Data) {
		timeline = append(timeline, d)
	})
	require.NoError(t, err)
	require.Len(t, timeline, 5)

	// The abbreviated board shows the active piece on the empty board.
	assert.Equal(t, 4, timeline[1].Board.Count())

	// After the first placement the I piece is current and O is next.
	assert.Equal(t, tetris.TypeO, timeline[2].Next)
	assert.Equal(t, 7, timeline[2].Score)
	assert.Equal(t, 4, timeline[2].Board.Count())

	assert.Equal(t, tetris.TypeS, timeline[3].Next)
	assert.Equal(t, 8, timeline[3].Board.Count())
	assert.Equal(t, 0, timeline[3].Drought, "placing the I piece ends the drought")
	assert.Equal(t, 1, timeline[2].Drought)

	assert.False(t, r.InGame())
	assert.Equal(t, time.Second, r.Elapsed())
	assert.Equal(t, 2, r.Status().Placements())
}

func TestReplayerRejectsIllegalPlacement(t *testing.T) {
	r := NewReplayer()
	require.NoError(t, r.Apply(Start{Level: 0, Current: tetris.TypeT, Next: tetris.TypeT}))
	// Floating in the air is not a resting placement.
	err := r.Apply(Placement{Pose: tetris.Pose{R: 0, X: 3, Y: 5}})
	assert.Error(t, err)

	assert.ErrorIs(t, NewReplayer().Apply(End{}), ErrNotInGame)
}

func TestReplayerRecovery(t *testing.T) {
	r := NewReplayer()
	board := tetris.ParseBoard("111111111.")
	require.NoError(t, r.Apply(Recovery{StartLevel: 18, Current: tetris.TypeI, Next: tetris.TypeJ, Board: board, Score: 5000, Level: 18, Lines: 12}))
	require.True(t, r.InGame())

	require.NoError(t, r.Apply(Placement{NextNext: tetris.TypeL, Pose: tetris.Pose{R: 1, X: 7, Y: 16}}))
	d := r.Data()
	assert.Equal(t, 13, d.Lines)
	assert.Equal(t, 5000+40*19, d.Score)
	assert.Equal(t, 3, d.Board.Count())
}

func TestReplayerFullStateKeepsStableBoard(t *testing.T) {
	r := NewReplayer()
	stable := tetris.ParseBoard("111111111.")
	require.NoError(t, r.Apply(Recovery{StartLevel: 18, Current: tetris.TypeI, Next: tetris.TypeJ, Board: stable, Score: 5000, Level: 18, Lines: 12}))

	shown := tetris.ParseBoard(
		"....1.....",
		"111111111.",
	)
	require.NoError(t, r.Apply(FullState{DelayMs: 16, Board: shown, Next: tetris.TypeZ, Level: 19, Lines: 14, Score: 6200}))
	d := r.Data()
	assert.True(t, shown.Equals(d.Board))
	assert.Equal(t, tetris.TypeZ, d.Next)
	assert.Equal(t, 19, d.Level)
	assert.Equal(t, 14, d.Lines)
	assert.Equal(t, 6200, d.Score)
	assert.True(t, stable.Equals(r.IsolatedBoard()))
	assert.Equal(t, tetris.TypeI, r.Current())

	outside := NewReplayer()
	require.NoError(t, outside.Apply(FullState{Board: shown, Next: tetris.TypeZ, Level: 19}))
	assert.Equal(t, 0, outside.Data().Board.Count())
}
