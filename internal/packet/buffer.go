package packet

import (
	"fmt"
	"sync"
	"time"
)

// Sender delivers assembled packet batches. Batches must be delivered in the
// order they are sent.
type Sender interface {
	SendPackets(batch []byte) error
}

// SenderFunc adapts a function to a Sender.
type SenderFunc func(batch []byte) error

// SendPackets calls f(batch).
func (f SenderFunc) SendPackets(batch []byte) error { return f(batch) }

// Buffer collects packets produced during a frame and flushes them to a
// Sender as one batch. Safe for concurrent use.
type Buffer struct {
	sender Sender

	mu  sync.Mutex
	asm Assembler
}

// NewBuffer creates a buffer that flushes to sender.
func NewBuffer(sender Sender) *Buffer {
	return &Buffer{sender: sender}
}

// BufferPacket encodes p and queues it.
func (b *Buffer) BufferPacket(p Packet) error {
	enc, err := Encode(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asm.AddEncoded(enc)
	return nil
}

// Pending returns the number of queued packets.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asm.Len()
}

// SendBufferedPackets sends every queued packet as one batch. Nothing is
// sent when the buffer is empty.
func (b *Buffer) SendBufferedPackets() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.asm.Len() == 0 {
		return nil
	}
	batch, err := b.asm.Bytes(-1)
	if err != nil {
		return err
	}
	b.asm.Reset()
	if b.sender == nil {
		return nil
	}
	if err := b.sender.SendPackets(batch); err != nil {
		return fmt.Errorf("packet: cannot send batch: %w", err)
	}
	return nil
}

// TimeDelta turns absolute event times into the millisecond delays of timed
// packets. Delays are computed from cumulative elapsed time so that rounding
// never accumulates across packets.
type TimeDelta struct {
	start time.Time
	sent  int // milliseconds already accounted for
}

// NewTimeDelta starts measuring at start.
func NewTimeDelta(start time.Time) *TimeDelta {
	return &TimeDelta{start: start}
}

// Delta returns the delay for an event at now, clamped to MaxDelay.
func (t *TimeDelta) Delta(now time.Time) int {
	elapsed := int(now.Sub(t.start).Round(time.Millisecond) / time.Millisecond)
	d := max(0, min(elapsed-t.sent, MaxDelay))
	t.sent += d
	return d
}
