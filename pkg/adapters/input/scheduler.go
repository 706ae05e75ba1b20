package input

import (
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// Scheduler ticks once a second and derives two kinds of timer-driven
// events from core.GlobalState: a chat-session reset (plus an
// archivist trigger) once a conversation has gone idle past
// ChatTimeout, and a light on/off transition driven by presence and
// LightOffTimeout, restricted to evening/night hours exactly as
// scheduler_input.py's _worker_loop does.
type Scheduler struct {
	name            string
	lightOffTimeout time.Duration
	chatTimeout     time.Duration

	state  *core.GlobalState
	queue  *core.PriorityQueue
	logger core.Logger

	mu                        sync.Mutex
	lastProcessedConvEnd      time.Time
	cancel                    context.CancelFunc
	done                      chan struct{}
}

// NewScheduler builds a Scheduler adapter.
func NewScheduler(name string, lightOffTimeout, chatTimeout time.Duration, state *core.GlobalState, queue *core.PriorityQueue, logger core.Logger) *Scheduler {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Scheduler{
		name:            name,
		lightOffTimeout: lightOffTimeout,
		chatTimeout:     chatTimeout,
		state:           state,
		queue:           queue,
		logger:          logger,
	}
}

// BuildScheduler is the factory.InputBuilder for implementation
// "scheduler".
func BuildScheduler(state *core.GlobalState, queue *core.PriorityQueue, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		lightOff := time.Duration(cfgutil.Int(cfg, "light_off_timeout", 300)) * time.Second
		chatTimeout := time.Duration(cfgutil.Int(cfg, "conversation_chat_timeout", 600)) * time.Second
		return NewScheduler(name, lightOff, chatTimeout, state, queue, logger), nil
	}
}

func (s *Scheduler) Name() string { return s.name }

func (s *Scheduler) HandledKinds() []core.InputKind {
	return []core.InputKind{core.ChatSessionReset, core.TriggerArchivist, core.LightOnInput, core.LightOffInput}
}

func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.workerLoop(runCtx)
	s.logger.Info("scheduler adapter started", "name", s.name,
		"light_off_timeout", s.lightOffTimeout, "chat_timeout", s.chatTimeout)
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.logger.Info("scheduler adapter stopped", "name", s.name)
	return nil
}

func (s *Scheduler) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkChatTimeout()
			hour := time.Now().Hour()
			if hour >= 18 || hour < 7 {
				s.checkLights()
			}
		}
	}
}

func (s *Scheduler) checkChatTimeout() {
	start, end := s.state.ConversationTimes()
	if start.IsZero() || end.IsZero() {
		return
	}
	if start.After(end) {
		return
	}

	s.mu.Lock()
	if end.Equal(s.lastProcessedConvEnd) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if time.Since(end) < s.chatTimeout {
		return
	}

	resetEvent := core.NewInputEvent(core.ChatSessionReset, core.LOW, nil,
		core.WithSource(s.name), core.WithMetadata(map[string]any{
			"reason":          "timeout",
			"timeout_seconds": int(s.chatTimeout.Seconds()),
		}))
	if !s.queue.Offer(resetEvent) {
		s.logger.Warn("scheduler: input queue full, dropped chat_session_reset")
	}

	s.mu.Lock()
	s.lastProcessedConvEnd = end
	s.mu.Unlock()

	archivistEvent := core.NewInputEvent(core.TriggerArchivist, core.LOW, nil, core.WithSource(s.name))
	if !s.queue.Offer(archivistEvent) {
		s.logger.Warn("scheduler: input queue full, dropped trigger_archivist")
	}
}

func (s *Scheduler) checkLights() {
	presence := s.state.LastPresence()
	absence := s.state.LastAbsence()
	if presence.IsZero() || absence.IsZero() {
		return
	}

	lightOn := s.state.IsLightOn()

	if presence.After(absence) && lightOn {
		return
	}
	if absence.After(presence) && !lightOn {
		return
	}

	if presence.After(absence) {
		event := core.NewInputEvent(core.LightOnInput, core.LOW, nil, core.WithSource(s.name))
		if !s.queue.Offer(event) {
			s.logger.Warn("scheduler: input queue full, dropped light_on")
		}
		s.state.SetLightOn(true)
		return
	}

	if time.Since(absence) >= s.lightOffTimeout {
		event := core.NewInputEvent(core.LightOffInput, core.LOW, nil,
			core.WithSource(s.name), core.WithMetadata(map[string]any{
				"timeout_seconds": int(s.lightOffTimeout.Seconds()),
			}))
		if !s.queue.Offer(event) {
			s.logger.Warn("scheduler: input queue full, dropped light_off")
		}
		s.state.SetLightOn(false)
	}
}
