package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBus_PublishSubscribeFiltered(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventChatMessage)

	require.NoError(t, bus.Publish(NewEvent(EventChatMessage, map[string]string{"text": "hi"})))
	require.NoError(t, bus.Publish(NewEvent(EventMonitorStatus, "active")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bus.History(10)) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventChatMessage, received[0].Type)
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	ch, unsubscribe := bus.SubscribeChan(200)
	defer unsubscribe()

	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish(NewEvent(EventChatMessage, i)))
	}

	for i := 0; i < 100; i++ {
		select {
		case e := <-ch:
			assert.Equal(t, i, e.Payload)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()

	require.NoError(t, bus.Publish(NewEvent(EventStatsUpdated, nil)))
	require.Eventually(t, func() bool { return len(bus.History(1)) == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(4)
	bus.Close()
	bus.Close()
	assert.ErrorIs(t, bus.Publish(NewEvent(EventChatMessage, nil)), ErrBusClosed)
}

func TestRingBuffer_Wraps(t *testing.T) {
	r := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.Add(Event{ID: string(rune('a' + i))})
	}
	got := r.Get(10)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "e", got[2].ID)
}
