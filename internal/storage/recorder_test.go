package storage

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

func newTestRecorder(t *testing.T, store *Store) (*Recorder, *packet.Buffer) {
	t.Helper()
	hub := packet.NewHub()
	rec := NewRecorder(store, RecorderOptions{
		Source: SourceSSH,
		Player: "bob",
		Logger: log.New(io.Discard),
	})
	hub.Register(rec)
	return rec, packet.NewBuffer(hub)
}

func send(t *testing.T, buf *packet.Buffer, ps ...packet.Packet) {
	t.Helper()
	for _, p := range ps {
		if err := buf.BufferPacket(p); err != nil {
			t.Fatalf("BufferPacket(%v) failed: %v", p.Opcode(), err)
		}
	}
	if err := buf.SendBufferedPackets(); err != nil {
		t.Fatalf("SendBufferedPackets() failed: %v", err)
	}
}

var (
	placeT = packet.Placement{DelayMs: 900, NextNext: tetris.TypeO, Pose: tetris.Pose{R: 0, X: 3, Y: 17}, Pushdown: 5}
	placeL = packet.Placement{DelayMs: 800, NextNext: tetris.TypeS, Pose: tetris.Pose{R: 0, X: 6, Y: 17}}
)

func TestRecorderSavesFinishedGame(t *testing.T) {
	store := openTestStore(t)
	rec, buf := newTestRecorder(t, store)

	send(t, buf, packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL})
	send(t, buf, packet.AbbrBoard{DelayMs: 16, Pose: tetris.Pose{R: 0, X: 3, Y: 5}}, placeT)
	send(t, buf, placeL)
	send(t, buf, packet.End{})
	rec.Close()

	saved := rec.Saved()
	if len(saved) != 1 {
		t.Fatalf("Saved() = %v, expected one game", saved)
	}
	g, err := store.Game(saved[0])
	if err != nil || g == nil {
		t.Fatalf("Game() = %v, %v", g, err)
	}
	if g.Source != SourceSSH || g.Player != "bob" || g.EndReason != "topout" {
		t.Errorf("Game() = %+v, expected ssh game of bob ended by topout", g)
	}
	if g.StartLevel != 18 || g.Score != 5 || g.Placements != 2 {
		t.Errorf("Game() = %+v, expected level 18, score 5, 2 placements", g)
	}
	if g.Duration.Milliseconds() != 16+900+800 {
		t.Errorf("Duration = %v, expected the sum of packet delays", g.Duration)
	}

	ps, err := store.Placements(g.ID)
	if err != nil {
		t.Fatalf("Placements() failed: %v", err)
	}
	if len(ps) != 2 || ps[0].Piece != tetris.TypeT || ps[1].Piece != tetris.TypeL {
		t.Fatalf("Placements() = %+v, expected T then L", ps)
	}
	if ps[0].Score != 5 {
		t.Errorf("first placement score = %d, expected 5", ps[0].Score)
	}

	var boards []*tetris.Board
	err = Replay(g.Stream, func(i int, b *tetris.Board, st tetris.SmartGameStatus) {
		if st.Level != 18 {
			t.Errorf("placement %d level = %d, expected 18", i, st.Level)
		}
		boards = append(boards, b)
	})
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("Replay() saw %d placements, expected 2", len(boards))
	}
	want := tetris.ParseBoard(
		"....TTTLLL",
		".....T.L..",
	)
	if !boards[1].EqualsIgnoreColor(want) {
		t.Errorf("final board:\n%s\nexpected:\n%s", boards[1], want)
	}
}

func TestRecorderSkipsEmptyGames(t *testing.T) {
	store := openTestStore(t)
	rec, buf := newTestRecorder(t, store)

	send(t, buf, packet.Countdown{Value: 3})
	send(t, buf, packet.Start{Level: 0, Current: tetris.TypeT, Next: tetris.TypeL}, packet.End{})
	rec.Close()

	if saved := rec.Saved(); len(saved) != 0 {
		t.Errorf("Saved() = %v, expected nothing", saved)
	}
}

func TestRecorderSavesUnfinishedGameOnClose(t *testing.T) {
	store := openTestStore(t)
	rec, buf := newTestRecorder(t, store)

	send(t, buf, packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}, placeT)
	rec.Close()
	rec.Close()

	saved := rec.Saved()
	if len(saved) != 1 {
		t.Fatalf("Saved() = %v, expected one game", saved)
	}
	g, _ := store.Game(saved[0])
	if g == nil || g.EndReason != "unfinished" {
		t.Errorf("Game() = %+v, expected an unfinished game", g)
	}

	// Closed recorders ignore further batches.
	send(t, buf, packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}, placeT, packet.End{})
}

func TestRecorderSplitsRestartedGames(t *testing.T) {
	store := openTestStore(t)
	rec, buf := newTestRecorder(t, store)

	send(t, buf, packet.Start{Level: 18, Current: tetris.TypeT, Next: tetris.TypeL}, placeT)
	send(t, buf, packet.Start{Level: 19, Current: tetris.TypeT, Next: tetris.TypeL}, placeT, packet.End{})
	rec.Close()

	saved := rec.Saved()
	if len(saved) != 2 {
		t.Fatalf("Saved() = %v, expected two games", saved)
	}
	first, _ := store.Game(saved[0])
	second, _ := store.Game(saved[1])
	if first.EndReason != "restarted" || first.StartLevel != 18 {
		t.Errorf("first game = %+v, expected a restarted level 18 game", first)
	}
	if second.EndReason != "topout" || second.StartLevel != 19 {
		t.Errorf("second game = %+v, expected a level 19 game ended by topout", second)
	}
}
