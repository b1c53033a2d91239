// Package display defines the data pushed to a front end once per frame and
// a publisher that only forwards changes.
package display

import (
	"sync"

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
)

// Data is everything a front end needs to draw one player.
type Data struct {
	Board      *tetris.Board
	Next       tetris.TetrominoType
	Level      int
	Lines      int
	Score      int
	TetrisRate float64
	Drought    int
	// Countdown is the remaining 3-2-1 countdown, 0 when not counting down.
	Countdown int
}

// Empty returns the data shown when no game is running.
func Empty() Data {
	return Data{Board: tetris.NewBoard(), Next: tetris.TypeError}
}

// Equal reports whether both values would render identically.
func (d Data) Equal(o Data) bool {
	if d.Next != o.Next || d.Level != o.Level || d.Lines != o.Lines || d.Score != o.Score ||
		d.TetrisRate != o.TetrisRate || d.Drought != o.Drought || d.Countdown != o.Countdown {
		return false
	}
	switch {
	case d.Board == nil && o.Board == nil:
		return true
	case d.Board == nil || o.Board == nil:
		return false
	default:
		return d.Board.Equals(o.Board)
	}
}

// Copy returns a deep copy so the receiver can keep it after the producer
// mutates its board.
func (d Data) Copy() Data {
	if d.Board != nil {
		d.Board = d.Board.Copy()
	}
	return d
}

// Sink receives display data.
type Sink interface {
	Push(d Data)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(d Data)

// Push calls f(d).
func (f SinkFunc) Push(d Data) { f(d) }

// Publisher forwards data to a sink only when it differs from the last push.
// Safe for concurrent use.
type Publisher struct {
	sink Sink

	mu   sync.Mutex
	last *Data
}

// NewPublisher creates a publisher for sink. A nil sink discards everything.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish pushes d if it changed and reports whether it did.
func (p *Publisher) Publish(d Data) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && p.last.Equal(d) {
		return false
	}
	c := d.Copy()
	p.last = &c
	if p.sink != nil {
		p.sink.Push(c.Copy())
	}
	return true
}

// Last returns the last published data and whether anything was published.
func (p *Publisher) Last() (Data, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return Data{}, false
	}
	return p.last.Copy(), true
}

// Reset forgets the last push so the next Publish always forwards.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
}
