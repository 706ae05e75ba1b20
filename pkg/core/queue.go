package core

import (
	"container/heap"
	"context"
	"sync"
)

// item wraps a queued Event with a monotonic sequence number so that
// ties in Priority resolve to stable FIFO order, matching the
// insertion-order tie-break every buffering container in this system
// must honor.
type item struct {
	event Event
	seq   uint64
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].event.Priority != h[j].event.Priority {
		return h[i].event.Priority < h[j].event.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PriorityQueue is a bounded, thread-safe priority queue of Events.
// Multiple producers may Offer/Put; a single consumer is expected to
// Get. Ordering: priority ascending, FIFO within a priority class.
type PriorityQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	h        itemHeap
	maxSize  int
	nextSeq  uint64
	closed   bool
}

// NewPriorityQueue creates a queue bounded at maxSize. maxSize <= 0
// means unbounded.
func NewPriorityQueue(maxSize int) *PriorityQueue {
	q := &PriorityQueue{maxSize: maxSize}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Offer performs a non-blocking enqueue. It returns false if the
// queue is full or closed.
func (q *PriorityQueue) Offer(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.maxSize > 0 && len(q.h) >= q.maxSize {
		return false
	}
	heap.Push(&q.h, item{event: e, seq: q.nextSeq})
	q.nextSeq++
	q.notEmpty.Signal()
	return true
}

// Put blocks until space is available, the context is cancelled, or
// the queue is closed. It returns false on cancellation/close.
func (q *PriorityQueue) Put(ctx context.Context, e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.maxSize > 0 && len(q.h) >= q.maxSize {
		if !q.waitWithContext(ctx, q.notFull) {
			return false
		}
	}
	if q.closed {
		return false
	}
	heap.Push(&q.h, item{event: e, seq: q.nextSeq})
	q.nextSeq++
	q.notEmpty.Signal()
	return true
}

// Get blocks until an Event is available, the context is done, or the
// queue is closed, whichever comes first. ok is false on timeout,
// cancellation, or close-while-empty.
func (q *PriorityQueue) Get(ctx context.Context) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.h) == 0 {
		if q.closed {
			return Event{}, false
		}
		if !q.waitWithContext(ctx, q.notEmpty) {
			return Event{}, false
		}
	}
	it := heap.Pop(&q.h).(item)
	q.notFull.Signal()
	return it.event, true
}

// Len reports the current number of queued events.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Close marks the queue closed; pending and future waiters are woken
// and return ok=false. Queued events are discarded per the shutdown
// contract (no replay of remainders).
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// waitWithContext waits on cond until signalled, but also returns
// (false) promptly when ctx is done. Callers must hold q.mu.
func (q *PriorityQueue) waitWithContext(ctx context.Context, cond *sync.Cond) bool {
	if ctx.Err() != nil {
		return false
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		close(done)
		cond.Broadcast()
	})
	defer stop()

	cond.Wait()

	select {
	case <-done:
		return false
	default:
		return ctx.Err() == nil
	}
}
