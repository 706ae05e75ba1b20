// Package router implements the Event Router: a type→subscribers
// broadcast table that dispatches every output event to every
// registered subscriber, tracking routed/dropped/no_route statistics.
//
// Grounded on original_source/core/event_router.py: the table lock is
// held only for lookup, subscriber delivery happens against an
// unlocked snapshot to avoid priority-inversion between fast routing
// and slow worker wake-ups.
package router

import (
	"sync"
	"sync/atomic"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// Subscriber is anything the Router can deliver an output event to.
// Output adapters implement this directly via their own bounded
// internal queue.
type Subscriber interface {
	// Offer attempts a non-blocking enqueue. false means the
	// subscriber's queue was full (or otherwise refused delivery).
	Offer(event core.Event) bool
	Name() string
}

// Stats mirrors core/event_router.py's stats dict, using atomics so
// Stats() needs no lock.
type Stats struct {
	Routed  int64
	Dropped int64
	NoRoute int64
}

// Router dispatches output events to every subscriber registered for
// their OutputKind.
type Router struct {
	mu     sync.Mutex
	routes map[core.OutputKind][]Subscriber
	logger core.Logger

	routed  atomic.Int64
	dropped atomic.Int64
	noRoute atomic.Int64
}

// New creates an empty Router. A nil logger is replaced with a no-op.
func New(logger core.Logger) *Router {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Router{
		routes: make(map[core.OutputKind][]Subscriber),
		logger: logger,
	}
}

// Register binds a subscriber to an OutputKind. A subscriber may
// appear only once per kind; re-registering the same (kind,
// subscriber) pair is a no-op.
func (r *Router) Register(kind core.OutputKind, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes[kind] {
		if existing == sub {
			return
		}
	}
	r.routes[kind] = append(r.routes[kind], sub)
	r.logger.Info("route registered", "kind", string(kind), "subscriber", sub.Name(), "count", len(r.routes[kind]))
}

// Route dispatches a single event to every subscriber bound to its
// kind and returns the number of subscribers the event actually
// reached.
func (r *Router) Route(event core.Event) int {
	if !event.IsOutput() {
		r.logger.Warn("cannot route a non-output event", "direction", event.Direction)
		return 0
	}

	r.mu.Lock()
	subs := r.routes[event.OutputType]
	// Snapshot under the lock; iterate unlocked below so a slow
	// subscriber can't hold up registration/lookup for everyone else.
	snapshot := make([]Subscriber, len(subs))
	copy(snapshot, subs)
	r.mu.Unlock()

	if len(snapshot) == 0 {
		r.noRoute.Add(1)
		r.logger.Debug("no route for event", "kind", string(event.OutputType))
		return 0
	}

	delivered := 0
	for _, sub := range snapshot {
		if r.safeOffer(sub, event) {
			delivered++
			r.routed.Add(1)
		} else {
			r.dropped.Add(1)
		}
	}
	return delivered
}

// safeOffer guards against a subscriber panicking inside Offer: the
// panic is recovered, logged with full cause, and counted as a drop.
// The subscriber is never automatically unregistered.
func (r *Router) safeOffer(sub Subscriber, event core.Event) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic routing event", "subscriber", sub.Name(), "cause", rec)
			ok = false
		}
	}()
	return sub.Offer(event)
}

// RouteBatch routes every event in order and returns the total number
// of (event, subscriber) deliveries across the batch.
func (r *Router) RouteBatch(events []core.Event) int {
	total := 0
	for _, e := range events {
		total += r.Route(e)
	}
	return total
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() Stats {
	return Stats{
		Routed:  r.routed.Load(),
		Dropped: r.dropped.Load(),
		NoRoute: r.noRoute.Load(),
	}
}

// ClearStats resets routing counters to zero.
func (r *Router) ClearStats() {
	r.routed.Store(0)
	r.dropped.Store(0)
	r.noRoute.Store(0)
}

// RouteCounts returns the number of subscribers registered per kind,
// for diagnostics/tests.
func (r *Router) RouteCounts() map[core.OutputKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[core.OutputKind]int, len(r.routes))
	for kind, subs := range r.routes {
		counts[kind] = len(subs)
	}
	return counts
}
