package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the per-subscriber queue depth used when the
// caller does not specify one.
const DefaultSubscriberBuffer = 64

// Bus is an ordered, multi-subscriber event distributor scoped to one
// session. Publish assigns the next sequence number, appends to the
// session log, and fans the event out to every live subscriber. Each
// subscriber has a bounded queue; one that cannot keep up is disconnected
// rather than stalling publication.
type Bus struct {
	sessionID  string
	bufferSize int
	logger     *slog.Logger

	mu          sync.Mutex
	seq         uint64
	log         []Event
	subscribers map[string]chan Event
	closed      bool
}

// New creates a bus for the given session. bufferSize <= 0 selects
// DefaultSubscriberBuffer. Pass nil logger for the default.
func New(sessionID string, bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		sessionID:   sessionID,
		bufferSize:  bufferSize,
		logger:      logger.With("component", "eventbus", "session_id", sessionID),
		subscribers: make(map[string]chan Event),
	}
}

// SessionID returns the session this bus belongs to.
func (b *Bus) SessionID() string { return b.sessionID }

// Publish stamps the event with the next sequence number and the current
// time, appends it to the log, and delivers it to all subscribers in one
// total order. It returns the published (stamped) event. Publishing to a
// closed bus is a no-op that returns the zero Event.
func (b *Bus) Publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}
	}

	b.seq++
	e.Seq = b.seq
	e.SessionID = b.sessionID
	e.Timestamp = time.Now()
	b.log = append(b.log, e)

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Queue full: disconnect the subscriber so publication
			// never stalls. The slow consumer sees a closed channel.
			delete(b.subscribers, id)
			close(ch)
			b.logger.Warn("disconnected slow subscriber",
				"sub_id", id, "seq", e.Seq)
		}
	}
	return e
}

// Subscribe registers a new subscriber and returns its live event channel
// plus a subscription ID for Unsubscribe. The channel yields events from
// this point forward; use Replay for history. The channel is closed when
// the subscriber is dropped, unsubscribed, or the bus is closed.
func (b *Bus) Subscribe() (<-chan Event, string) {
	id := uuid.New().String()
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, id
	}
	b.subscribers[id] = ch
	b.logger.Debug("subscriber added", "sub_id", id)
	return ch, id
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)
	b.logger.Debug("subscriber removed", "sub_id", id)
}

// Replay returns a copy of the full event log in publish order.
func (b *Bus) Replay() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.log))
	copy(out, b.log)
	return out
}

// LastSeq returns the sequence number of the most recently published
// event, or 0 if nothing has been published.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close disconnects all subscribers and rejects further publishes. Safe
// to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.logger.Debug("bus closed")
}
