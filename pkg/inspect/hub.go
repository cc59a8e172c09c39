package inspect

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

// DefaultHubBuffer is the per-subscriber queue length.
const DefaultHubBuffer = 64

// Hub fans effect lifecycle events out to subscribers as JSON messages.
// It implements effect.Observer. A subscriber whose queue is full is
// dropped so that a slow client never blocks an effect.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	ch   chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewHub creates a Hub. A buffer below one selects DefaultHubBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = DefaultHubBuffer
	}
	if logger == nil {
		logger = slog.Default().With("component", "hub")
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber. The channel is closed when the
// subscriber is dropped, cancelled or the hub closes.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	s := &subscriber{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		s.close()
	}
}

// Publish sends ev to every subscriber.
func (h *Hub) Publish(ev effect.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.published.Add(1)
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			delete(h.subs, s)
			s.close()
			h.dropped.Add(1)
			h.logger.Warn("dropped slow subscriber", "buffer", h.buffer)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Published returns how many events were published.
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Dropped returns how many subscribers were dropped for falling behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber. Later subscribers are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.close()
	}
	h.subs = nil
}

// SessionStarted implements effect.Observer.
func (h *Hub) SessionStarted(s *effect.Session, inputs deps.List) {
	h.Publish(effect.EventFromStart(s, inputs))
}

// SessionEnded implements effect.Observer.
func (h *Hub) SessionEnded(s *effect.Session, reason effect.EndReason) {
	h.Publish(effect.EventFromEnd(s, reason))
}

// Skipped implements effect.Observer.
func (h *Hub) Skipped(s *effect.Session, inputs deps.List) {
	h.Publish(effect.EventFromSkip(s, inputs))
}
