// Package fanout delivers committed turn results to live session subscribers.
// Delivery is best-effort: a slow subscriber loses its oldest buffered events
// and is told it fell behind, never the publisher's latency.
package fanout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/internal/metrics"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

const (
	defaultBufferSize = 32

	// How long a session that has published keeps its sequence state after
	// its last subscriber detaches. A client reconnecting inside the window
	// sees the sequence continue; after it, the session is gone and the
	// sequence restarts.
	defaultSessionIdleTTL = 5 * time.Minute
)

// Event is one realtime frame. Seq is per-session and strictly increasing;
// Behind marks the first frame after the subscriber's buffer overflowed, so
// clients know to refetch the scene before applying further patches.
type Event struct {
	Type   string           `json:"type"`
	Seq    int64            `json:"seq"`
	Behind bool             `json:"behind,omitempty"`
	Result scene.TurnResult `json:"result"`
}

// EventTypeTurn is the only frame type currently emitted.
const EventTypeTurn = "turn"

// Subscriber is one attached client. Events arrives in publish order; the
// channel closes when the subscriber is detached.
type Subscriber struct {
	id     uint64
	events chan Event
	behind bool // guarded by the hub mutex
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

type sessionState struct {
	seq         int64
	subscribers map[uint64]*Subscriber
	evict       *time.Timer
}

// Hub implements ports.Publisher over per-session subscriber sets.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	nextID   uint64

	bufferSize int
	idleTTL    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithSessionIdleTTL sets how long a published session outlives its last
// subscriber before its sequence state is evicted.
func WithSessionIdleTTL(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.idleTTL = d
		}
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics attaches the engine collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:   make(map[string]*sessionState),
		bufferSize: defaultBufferSize,
		idleTTL:    defaultSessionIdleTTL,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ ports.Publisher = (*Hub)(nil)

// Subscribe attaches a new subscriber to the session.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		sess = &sessionState{subscribers: make(map[uint64]*Subscriber)}
		h.sessions[sessionID] = sess
	}
	if sess.evict != nil {
		sess.evict.Stop()
		sess.evict = nil
	}
	h.nextID++
	sub := &Subscriber{
		id:     h.nextID,
		events: make(chan Event, h.bufferSize),
	}
	sess.subscribers[sub.id] = sub
	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	h.logger.Debug("subscriber attached", "session_id", sessionID, "subscribers", len(sess.subscribers))
	return sub
}

// Unsubscribe detaches the subscriber and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if _, attached := sess.subscribers[sub.id]; !attached {
		return
	}
	delete(sess.subscribers, sub.id)
	close(sub.events)
	if len(sess.subscribers) == 0 {
		if sess.seq == 0 {
			delete(h.sessions, sessionID)
		} else {
			// Keep the sequence around for reconnects, but only for the idle
			// window; abandoned sessions must not accumulate forever.
			h.scheduleEvict(sessionID, sess)
		}
	}
	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
	h.logger.Debug("subscriber detached", "session_id", sessionID, "subscribers", len(sess.subscribers))
}

// Publish assigns the next session sequence number and offers the event to
// every subscriber. A full buffer sheds its oldest event so the newest state
// always lands; exactly one subsequent frame carries Behind, then delivery is
// clean until the next overflow.
func (h *Hub) Publish(sessionID string, result scene.TurnResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		sess = &sessionState{subscribers: make(map[uint64]*Subscriber)}
		h.sessions[sessionID] = sess
	}
	if sess.evict != nil {
		sess.evict.Stop()
		sess.evict = nil
	}
	sess.seq++

	event := Event{Type: EventTypeTurn, Seq: sess.seq, Result: result}
	for _, sub := range sess.subscribers {
		ev := event
		if sub.behind {
			ev.Behind = true
		}
		for {
			select {
			case sub.events <- ev:
			default:
				// Buffer full: shed the oldest frame and retry.
				select {
				case <-sub.events:
					sub.behind = true
					ev.Behind = true
					if h.metrics != nil {
						h.metrics.EventsDropped.Inc()
					}
					h.logger.Warn("subscriber behind, dropped oldest event",
						"session_id", sessionID,
						"seq", ev.Seq,
					)
				default:
				}
				continue
			}
			break
		}
		// The flagged frame is enqueued; later frames are clean until the
		// next overflow.
		sub.behind = false
		if h.metrics != nil {
			h.metrics.EventsDelivered.Inc()
		}
	}

	if len(sess.subscribers) == 0 {
		h.scheduleEvict(sessionID, sess)
	}
}

// scheduleEvict arms the idle timer for a subscriber-less session. Callers
// hold the hub mutex.
func (h *Hub) scheduleEvict(sessionID string, sess *sessionState) {
	if h.idleTTL <= 0 {
		return
	}
	if sess.evict != nil {
		sess.evict.Stop()
	}
	sess.evict = time.AfterFunc(h.idleTTL, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		current, ok := h.sessions[sessionID]
		if ok && current == sess && len(sess.subscribers) == 0 {
			delete(h.sessions, sessionID)
			h.logger.Debug("idle session evicted", "session_id", sessionID, "seq", sess.seq)
		}
	})
}

// SubscriberCount reports attached subscribers for the session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sess.subscribers)
}
