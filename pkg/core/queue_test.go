package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewPriorityQueue(0)

	q.Offer(NewInputEvent(SensorPresence, LOW, nil))
	q.Offer(NewInputEvent(Shutdown, CRITICAL, nil))
	q.Offer(NewInputEvent(UserSpeech, HIGH, nil))
	q.Offer(NewInputEvent(Wakeword, NORMAL, nil))
	q.Offer(NewInputEvent(ConversationEnd, HIGH, nil))

	want := []InputKind{Shutdown, UserSpeech, ConversationEnd, Wakeword, SensorPresence}

	ctx := context.Background()
	for i, k := range want {
		e, ok := q.Get(ctx)
		require.Truef(t, ok, "item %d: Get returned ok=false", i)
		assert.Equalf(t, k, e.InputType, "item %d", i)
	}
}

func TestPriorityQueueOfferFullReturnsFalse(t *testing.T) {
	q := NewPriorityQueue(1)
	require.True(t, q.Offer(NewInputEvent(Wakeword, NORMAL, nil)), "first Offer should succeed")
	assert.False(t, q.Offer(NewInputEvent(Wakeword, NORMAL, nil)), "second Offer on a full queue should return false")
}

func TestPriorityQueueGetTimesOut(t *testing.T) {
	q := NewPriorityQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Get(ctx)
	assert.False(t, ok, "expected Get to time out on an empty queue")
}

func TestPriorityQueueCloseWakesWaiters(t *testing.T) {
	q := NewPriorityQueue(0)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Get(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok, "expected Get to report ok=false after Close")
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Close")
	}
}

func TestPriorityQueuePutBlocksUntilSpace(t *testing.T) {
	q := NewPriorityQueue(1)
	q.Offer(NewInputEvent(Wakeword, NORMAL, nil))

	putDone := make(chan bool, 1)
	go func() {
		ok := q.Put(context.Background(), NewInputEvent(UserSpeech, NORMAL, nil))
		putDone <- ok
	}()

	select {
	case <-putDone:
		t.Fatal("Put should have blocked while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	_, _ = q.Get(context.Background())

	select {
	case ok := <-putDone:
		assert.True(t, ok, "Put should have succeeded once space freed up")
	case <-time.After(time.Second):
		t.Fatal("Put never unblocked after space freed up")
	}
}
