package storage

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/nestris-ocr/internal/display"
	"github.com/vovakirdan/nestris-ocr/internal/packet"
	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	ID     packet.SessionID
	Source string
	Player string
	Logger *log.Logger
	// OnSaved is called after each game is written.
	OnSaved func(GameRecord)
}

// Recorder is a hub session that rebuilds every game from the packet
// stream and saves it when it ends. Unlike a viewer it never drops
// batches: Send blocks until the batch is queued.
type Recorder struct {
	opts   RecorderOptions
	store  *Store
	logger *log.Logger

	events   chan packet.Event
	done     chan struct{}
	finished chan struct{}

	mu     sync.RWMutex
	closed bool

	// Owned by the run goroutine.
	game  *recording
	saved []string
}

type recording struct {
	asm        packet.Assembler
	replayer   *packet.Replayer
	placements []PlacementRecord
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store *Store, opts RecorderOptions) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "recorder",
		})
	}
	if opts.ID == "" {
		opts.ID = "recorder"
	}
	r := &Recorder{
		opts:     opts,
		store:    store,
		logger:   logger,
		events:   make(chan packet.Event, 16),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go r.run()
	return r
}

// ID returns the session identifier.
func (r *Recorder) ID() packet.SessionID { return r.opts.ID }

// Send queues an event, blocking while the queue is full. Events sent after
// Close are ignored.
func (r *Recorder) Send(evt packet.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.events <- evt
}

// SendPackets records a batch directly, so a Recorder can also be the
// Sender of a packet.Buffer.
func (r *Recorder) SendPackets(batch []byte) error {
	r.Send(packet.BatchEvent{Data: batch})
	return nil
}

// Done returns a channel closed by Close.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Close stops accepting events, records everything already queued and
// waits for it to be written. A game still in progress is saved with the
// end reason "unfinished". Safe to call multiple times.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.done)
		close(r.events)
	}
	r.mu.Unlock()
	<-r.finished
}

// Saved returns the ids of the games saved so far. Only valid after Close.
func (r *Recorder) Saved() []string {
	<-r.finished
	return append([]string(nil), r.saved...)
}

func (r *Recorder) run() {
	defer close(r.finished)
	for evt := range r.events {
		switch e := evt.(type) {
		case packet.BatchEvent:
			r.record(e.Data)
		case packet.ClosedEvent:
			r.finish(e.Reason)
		}
	}
	r.finish("unfinished")
}

func (r *Recorder) record(batch []byte) {
	_, packets, err := packet.Disassemble(batch, false)
	if err != nil {
		r.logger.Warn("cannot decode batch", "error", err)
	}
	for _, p := range packets {
		r.apply(p)
	}
}

func (r *Recorder) apply(p packet.Packet) {
	switch p.(type) {
	case packet.Start:
		r.finish("restarted")
		r.game = &recording{replayer: packet.NewReplayer()}
	case packet.Recovery:
		if r.game == nil {
			r.game = &recording{replayer: packet.NewReplayer()}
		}
	}
	g := r.game
	if g == nil {
		return
	}

	current := g.replayer.Current()
	if err := g.replayer.Apply(p); err != nil {
		r.logger.Warn("inconsistent packet", "packet", p.Opcode(), "error", err)
		return
	}
	if err := g.asm.Add(p); err != nil {
		r.logger.Warn("cannot re-encode packet", "packet", p.Opcode(), "error", err)
	}

	switch p := p.(type) {
	case packet.Placement:
		st := g.replayer.Status()
		g.placements = append(g.placements, PlacementRecord{
			Index: len(g.placements),
			Piece: current,
			Pose:  p.Pose,
			Level: st.Level,
			Lines: st.Lines,
			Score: st.Score,
		})
	case packet.End:
		r.finish("topout")
	}
}

// finish saves the game in progress, if any.
func (r *Recorder) finish(reason string) {
	g := r.game
	r.game = nil
	if g == nil {
		return
	}
	if len(g.placements) == 0 {
		r.logger.Debug("skipping game without placements", "reason", reason)
		return
	}
	stream, err := g.asm.Bytes(-1)
	if err != nil {
		r.logger.Error("cannot assemble stream", "error", err)
		return
	}
	st := g.replayer.Status()
	rec := GameRecord{
		Source:     r.opts.Source,
		Player:     r.opts.Player,
		StartLevel: st.StartLevel,
		Level:      st.Level,
		Lines:      st.Lines,
		Score:      st.Score,
		Placements: st.Placements(),
		TetrisRate: st.TetrisRate(),
		Duration:   g.replayer.Elapsed(),
		EndReason:  reason,
		Stream:     stream,
	}
	id, err := r.store.SaveGame(rec, g.placements)
	if err != nil {
		r.logger.Error("cannot save game", "error", err)
		return
	}
	rec.ID = id
	r.saved = append(r.saved, id)
	r.logger.Info("game recorded", "id", id, "score", rec.Score, "lines", rec.Lines, "reason", reason)
	if r.opts.OnSaved != nil {
		r.opts.OnSaved(rec)
	}
}

// Replay decodes the stream of a recorded game and calls fn after every
// placement with the board and status at that point.
func Replay(stream []byte, fn func(index int, board *tetris.Board, st tetris.SmartGameStatus)) error {
	r := packet.NewReplayer()
	index := 0
	return r.ReplayStream(stream, func(p packet.Packet, _ display.Data) {
		if _, ok := p.(packet.Placement); ok {
			fn(index, r.IsolatedBoard(), r.Status().SmartGameStatus)
			index++
		}
	})
}
