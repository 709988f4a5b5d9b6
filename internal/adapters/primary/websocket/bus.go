package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/metrics"
)

// DefaultSubscriberBuffer is the per-subscriber queue length used when none is configured.
const DefaultSubscriberBuffer = 256

// Forwarder receives every event published on this instance, after local fan-out.
type Forwarder interface {
	Forward(ev domain.Event)
}

// Bus fans every published event out to every live subscription.
// A full subscriber queue loses its oldest pending event; publishers never block
// on slow subscribers.
type Bus struct {
	// mu guards subs and forwarder
	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	// pubMu serialises fan-out so every subscriber sees one global order
	pubMu sync.Mutex

	forwarder Forwarder
	buffer    int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Ensure Bus implements the EventPublisher interface.
var _ ports.EventPublisher = (*Bus)(nil)

// NewBus creates a bus whose subscriptions buffer up to bufferSize events.
func NewBus(bufferSize int, logger *slog.Logger, m *metrics.Metrics) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		buffer:  bufferSize,
		metrics: m,
		logger:  logger.With("component", "event_bus"),
	}
}

// SetForwarder installs f to receive events passed to Publish. A nil f removes it.
func (b *Bus) SetForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarder = f
}

// Subscribe registers a new subscription. It receives every event published
// after Subscribe returns, until it is closed.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan domain.Event, b.buffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()

	b.metrics.SubscriberAdded()
	b.logger.Debug("subscription added", "subscribers", count)
	return sub
}

// Publish delivers ev to every subscriber and hands it to the forwarder.
func (b *Bus) Publish(ev domain.Event) {
	if ev == nil {
		return
	}
	b.fanOut(ev)

	b.mu.RLock()
	f := b.forwarder
	b.mu.RUnlock()
	if f != nil {
		f.Forward(ev)
	}
}

// PublishLocal delivers ev to local subscribers only.
func (b *Bus) PublishLocal(ev domain.Event) {
	if ev == nil {
		return
	}
	b.fanOut(ev)
}

func (b *Bus) fanOut(ev domain.Event) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	dropped := 0
	for _, sub := range subs {
		if sub.deliver(ev) {
			dropped++
			b.metrics.EventDropped()
		}
	}

	b.metrics.EventPublished(string(ev.Type()))
	b.logger.Debug("event published",
		"event_type", ev.Type(),
		"ticket_id", ev.Ticket(),
		"subscribers", len(subs),
		"dropped", dropped,
	)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()

	if ok {
		b.metrics.SubscriberRemoved()
	}
}

// Subscription is a handle on the bus. Events arrive on C in publish order.
type Subscription struct {
	bus *Bus

	// mu serialises delivery against Close
	mu      sync.Mutex
	ch      chan domain.Event
	closed  bool
	dropped atomic.Uint64
}

// C returns the receive channel. It is closed when the subscription is closed.
func (s *Subscription) C() <-chan domain.Event {
	return s.ch
}

// Dropped reports how many events this subscription lost to a full queue.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from the bus and closes C. It is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.bus.remove(s)
}

// deliver enqueues ev, evicting the oldest pending event while the queue is
// full. It reports whether anything was evicted.
func (s *Subscription) deliver(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	evicted := false
	for {
		select {
		case s.ch <- ev:
			return evicted
		default:
		}

		select {
		case <-s.ch:
			evicted = true
			s.dropped.Add(1)
		default:
		}
	}
}
