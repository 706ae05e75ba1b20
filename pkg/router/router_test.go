package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

type fakeSubscriber struct {
	name    string
	mu      sync.Mutex
	got     []core.Event
	accept  bool
	panicOn int
}

func (f *fakeSubscriber) Offer(e core.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn > 0 && len(f.got) == f.panicOn-1 {
		panic("boom")
	}
	if !f.accept {
		return false
	}
	f.got = append(f.got, e)
	return true
}

func (f *fakeSubscriber) Name() string { return f.name }

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestRouteDeliversToAllSubscribersOfKind(t *testing.T) {
	r := New(core.NoOpLogger{})
	a := &fakeSubscriber{name: "a", accept: true}
	b := &fakeSubscriber{name: "b", accept: true}
	r.Register(core.Speak, a)
	r.Register(core.Speak, b)

	delivered := r.Route(core.NewOutputEvent(core.Speak, core.HIGH, "hi"))
	require.Equal(t, 2, delivered)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	stats := r.Stats()
	assert.Equal(t, Stats{Routed: 2, Dropped: 0, NoRoute: 0}, stats)
}

func TestRouteWithNoSubscribersCountsNoRoute(t *testing.T) {
	r := New(core.NoOpLogger{})
	delivered := r.Route(core.NewOutputEvent(core.LedControl, core.NORMAL, "blink"))
	require.Equal(t, 0, delivered)
	assert.Equal(t, int64(1), r.Stats().NoRoute)
}

func TestRouteCountsDropWhenSubscriberRefuses(t *testing.T) {
	r := New(core.NoOpLogger{})
	full := &fakeSubscriber{name: "full", accept: false}
	r.Register(core.SaveHistory, full)

	delivered := r.Route(core.NewOutputEvent(core.SaveHistory, core.NORMAL, "msg"))
	require.Equal(t, 0, delivered)
	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRoutePanicInSubscriberCountsAsDrop(t *testing.T) {
	r := New(core.NoOpLogger{})
	bomb := &fakeSubscriber{name: "bomb", accept: true, panicOn: 1}
	r.Register(core.Speak, bomb)

	delivered := r.Route(core.NewOutputEvent(core.Speak, core.HIGH, "hi"))
	require.Equal(t, 0, delivered, "subscriber panicked")
	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRouteIgnoresInputEvents(t *testing.T) {
	r := New(core.NoOpLogger{})
	sub := &fakeSubscriber{name: "a", accept: true}
	r.Register(core.Speak, sub)

	delivered := r.Route(core.NewInputEvent(core.UserSpeech, core.HIGH, "hi"))
	assert.Equal(t, 0, delivered, "input event should not route")
}

func TestRegisterIsIdempotentPerSubscriber(t *testing.T) {
	r := New(core.NoOpLogger{})
	sub := &fakeSubscriber{name: "a", accept: true}
	r.Register(core.Speak, sub)
	r.Register(core.Speak, sub)

	assert.Equal(t, 1, r.RouteCounts()[core.Speak])
}
