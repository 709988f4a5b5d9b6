package websocket

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func typing(ticketID uuid.UUID, on bool) domain.TypingIndicator {
	return domain.TypingIndicator{TicketID: ticketID, UserID: uuid.New(), IsTyping: on}
}

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *recordingForwarder) Forward(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *recordingForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestBus_FanOutReachesEverySubscriber(t *testing.T) {
	bus := NewBus(8, discardLogger(), nil)

	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = bus.Subscribe()
	}
	assert.Equal(t, 5, bus.SubscriberCount())

	ev := typing(uuid.New(), true)
	bus.Publish(ev)

	for _, sub := range subs {
		assert.Equal(t, domain.Event(ev), receive(t, sub))
	}
}

func TestBus_PreservesPublishOrder(t *testing.T) {
	bus := NewBus(64, discardLogger(), nil)
	first, second := bus.Subscribe(), bus.Subscribe()

	ticketIDs := make([]uuid.UUID, 20)
	for i := range ticketIDs {
		ticketIDs[i] = uuid.New()
		bus.Publish(typing(ticketIDs[i], true))
	}

	for _, sub := range []*Subscription{first, second} {
		for _, want := range ticketIDs {
			assert.Equal(t, want, receive(t, sub).Ticket())
		}
	}
}

func TestBus_SubscriberOnlySeesLaterEvents(t *testing.T) {
	bus := NewBus(8, discardLogger(), nil)
	early := bus.Subscribe()

	before := typing(uuid.New(), true)
	bus.Publish(before)

	late := bus.Subscribe()
	after := typing(uuid.New(), false)
	bus.Publish(after)

	assert.Equal(t, domain.Event(before), receive(t, early))
	assert.Equal(t, domain.Event(after), receive(t, early))
	assert.Equal(t, domain.Event(after), receive(t, late))
	assert.Empty(t, late.C())
}

func TestBus_DropsOldestWhenFull(t *testing.T) {
	bus := NewBus(2, discardLogger(), nil)
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	bus.Publish(typing(ids[0], true))
	assert.Equal(t, ids[0], receive(t, fast).Ticket())

	bus.Publish(typing(ids[1], true))
	assert.Equal(t, ids[1], receive(t, fast).Ticket())

	bus.Publish(typing(ids[2], true))
	assert.Equal(t, ids[2], receive(t, fast).Ticket())

	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, ids[1], receive(t, slow).Ticket())
	assert.Equal(t, ids[2], receive(t, slow).Ticket())
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	bus := NewBus(8, discardLogger(), nil)
	kept := bus.Subscribe()
	gone := bus.Subscribe()

	gone.Close()
	gone.Close()
	assert.Equal(t, 1, bus.SubscriberCount())

	_, ok := <-gone.C()
	assert.False(t, ok, "closed subscription channel should be closed")

	ev := typing(uuid.New(), true)
	assert.NotPanics(t, func() { bus.Publish(ev) })
	assert.Equal(t, domain.Event(ev), receive(t, kept))
}

func TestBus_ForwarderSeesOnlyPublish(t *testing.T) {
	bus := NewBus(8, discardLogger(), nil)
	fwd := &recordingForwarder{}
	bus.SetForwarder(fwd)
	sub := bus.Subscribe()

	bus.Publish(typing(uuid.New(), true))
	bus.PublishLocal(typing(uuid.New(), false))

	receive(t, sub)
	receive(t, sub)
	assert.Equal(t, 1, fwd.count())

	bus.SetForwarder(nil)
	bus.Publish(typing(uuid.New(), true))
	assert.Equal(t, 1, fwd.count())
}

func TestBus_IgnoresNilEvent(t *testing.T) {
	bus := NewBus(8, discardLogger(), nil)
	sub := bus.Subscribe()

	bus.Publish(nil)
	bus.PublishLocal(nil)
	assert.Empty(t, sub.C())
}

func TestBus_ConcurrentPublishSubscribeClose(t *testing.T) {
	bus := NewBus(4, discardLogger(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(typing(uuid.New(), j%2 == 0))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sub := bus.Subscribe()
				sub.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.SubscriberCount())
}
