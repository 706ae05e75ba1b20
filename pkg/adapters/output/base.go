// Package output holds the concrete OutputAdapter implementations:
// TTS playback, LED/bulb control, persistence, archivist
// distillation, and the named-pipe IPC writer.
package output

import (
	"context"
	"sync"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// base gives every output adapter its own bounded internal queue and
// worker goroutine, mirroring adapters/ports.py's OutputPort: events
// routed to the adapter land on Offer, a single worker drains them in
// priority order and dispatches to a per-adapter handle function.
type base struct {
	name    string
	queue   *core.PriorityQueue
	logger  core.Logger
	handler func(event core.Event)

	mu   sync.Mutex
	done chan struct{}
}

func newBase(name string, queueSize int, logger core.Logger, handler func(event core.Event)) *base {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &base{
		name:    name,
		queue:   core.NewPriorityQueue(queueSize),
		logger:  logger,
		handler: handler,
	}
}

func (b *base) Offer(event core.Event) bool {
	return b.queue.Offer(event)
}

// startWorker launches the draining goroutine. The worker's blocking
// Get unblocks either on a queued event or on queue.Close() in
// stopWorker, so it needs no separate cancellation context.
func (b *base) startWorker() {
	b.mu.Lock()
	b.done = make(chan struct{})
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			event, ok := b.queue.Get(context.Background())
			if !ok {
				return
			}
			b.safeHandle(event)
		}
	}()
}

func (b *base) safeHandle(event core.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic handling output event", "adapter", b.name, "cause", rec)
		}
	}()
	b.handler(event)
}

func (b *base) stopWorker() {
	b.queue.Close()
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}
