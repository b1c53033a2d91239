package packet

import (
	"sync"
)

// SessionID uniquely identifies a consumer of a packet stream (a viewer
// connection, a recorder).
type SessionID string

// Event represents an event sent from the hub to a session.
type Event interface {
	hubEvent()
}

// BatchEvent carries one assembled packet batch. Seq increases by one per
// batch so consumers can detect drops.
type BatchEvent struct {
	Seq  uint64
	Data []byte
}

func (BatchEvent) hubEvent() {}

// ClosedEvent is sent once when the stream ends.
type ClosedEvent struct {
	Reason string
}

func (ClosedEvent) hubEvent() {}

// SessionHandle is the transport-neutral interface for delivering events to
// one consumer.
type SessionHandle interface {
	// ID returns the unique session identifier.
	ID() SessionID

	// Send delivers an event. Viewers may drop events; recorders block.
	Send(evt Event)

	// Done returns a channel that closes when the session ends.
	Done() <-chan struct{}
}

// ChannelSession is a SessionHandle implementation using Go channels.
// Used by live viewers, which prefer fresh events over complete history.
type ChannelSession struct {
	id       SessionID
	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
}

// NewChannelSession creates a new channel-based session handle.
// eventBufferSize controls how many events can be buffered before dropping.
func NewChannelSession(id SessionID, eventBufferSize int) *ChannelSession {
	if eventBufferSize < 1 {
		eventBufferSize = 64 // Default buffer size
	}
	return &ChannelSession{
		id:     id,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *ChannelSession) ID() SessionID {
	return s.id
}

// Send sends an event to the session.
// If the buffer is full, old events are dropped to prevent blocking.
func (s *ChannelSession) Send(evt Event) {
	select {
	case <-s.done:
		// Session is closed, don't send
		return
	default:
	}

	select {
	case s.events <- evt:
		// Event sent successfully
	default:
		// Buffer full, drop oldest and retry
		select {
		case <-s.events:
			// Dropped oldest
		default:
		}
		// Try again (best effort)
		select {
		case s.events <- evt:
		default:
		}
	}
}

// Events returns the channel to receive events from.
func (s *ChannelSession) Events() <-chan Event {
	return s.events
}

// Done returns the done channel.
func (s *ChannelSession) Done() <-chan struct{} {
	return s.done
}

// Close marks the session as done.
// Safe to call multiple times.
func (s *ChannelSession) Close() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Hub fans packet batches out to every registered session. It implements
// Sender so a Buffer can flush straight into it.
// Thread-safe for concurrent access.
type Hub struct {
	mu       sync.RWMutex
	sessions map[SessionID]SessionHandle
	seq      uint64
	closed   bool

	// sendMu serializes broadcasts so every session sees batches in order.
	sendMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[SessionID]SessionHandle),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(session SessionHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session.ID()] = session
}

// Unregister removes a session from the hub.
func (h *Hub) Unregister(id SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Get retrieves a session by ID.
func (h *Hub) Get(id SessionID) (SessionHandle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SendPackets broadcasts a batch to every live session. Sessions whose Done
// channel is closed are unregistered.
func (h *Hub) SendPackets(batch []byte) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.seq++
	evt := BatchEvent{Seq: h.seq, Data: batch}
	targets := h.liveLocked()
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(evt)
	}
	return nil
}

// Close sends ClosedEvent to every session and stops further broadcasts.
func (h *Hub) Close(reason string) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targets := h.liveLocked()
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(ClosedEvent{Reason: reason})
	}
}

// liveLocked returns the live sessions and drops finished ones.
// Must be called with h.mu held for writing.
func (h *Hub) liveLocked() []SessionHandle {
	out := make([]SessionHandle, 0, len(h.sessions))
	for id, s := range h.sessions {
		select {
		case <-s.Done():
			delete(h.sessions, id)
		default:
			out = append(out, s)
		}
	}
	return out
}
