package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	bus := newTestBus(t)
	a := bus.Subscribe("a", 4)
	b := bus.Subscribe("b", 4)

	bus.Publish(domain.Event{Type: domain.EventOrderSubmitted})

	select {
	case ev := <-a:
		assert.Equal(t, domain.EventOrderSubmitted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}
	select {
	case ev := <-b:
		assert.Equal(t, domain.EventOrderSubmitted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber b did not receive event")
	}
}

func TestBus_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe("slow", 1)

	bus.Publish(domain.Event{Type: domain.EventOrderFilled})
	bus.Publish(domain.Event{Type: domain.EventOrderFilled}) // buffer full, must not block

	assert.Equal(t, uint64(1), bus.DroppedCount("slow"))
	assert.Len(t, ch, 1)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe("temp", 1)
	bus.Unsubscribe("temp")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_PublishOrderIsPreservedPerSubscriber(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Subscribe("ordered", 8)

	bus.Publish(domain.Event{Type: domain.EventOrderSubmitted, OrderID: "1"})
	bus.Publish(domain.Event{Type: domain.EventOrderFilled, OrderID: "1"})

	first := <-ch
	second := <-ch
	assert.Equal(t, domain.EventOrderSubmitted, first.Type)
	assert.Equal(t, domain.EventOrderFilled, second.Type)
}

type fakeAuditStore struct {
	mu     sync.Mutex
	stored []domain.Event
	failOn domain.EventType
}

func (f *fakeAuditStore) AppendEvent(ctx context.Context, event domain.Event) error {
	if f.failOn != "" && event.Type == f.failOn {
		return errors.New("disk full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, event)
	return nil
}

func TestBus_RunPersistSubscriber_BestEffortOnNonSafetyEvent(t *testing.T) {
	bus := newTestBus(t)
	store := &fakeAuditStore{failOn: domain.EventOrderFilled}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.RunPersistSubscriber(ctx, store, 4)

	time.Sleep(10 * time.Millisecond) // let the subscriber register
	bus.Publish(domain.Event{Type: domain.EventOrderFilled})
	bus.Publish(domain.Event{Type: domain.EventOrderSubmitted})

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.stored) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBus_RunPersistSubscriber_StopsOnContextCancel(t *testing.T) {
	bus := newTestBus(t)
	store := &fakeAuditStore{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.RunPersistSubscriber(ctx, store, 4)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPersistSubscriber did not stop after context cancellation")
	}
}
