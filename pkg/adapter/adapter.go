// Package adapter defines the input/output adapter contracts and the
// Manager that owns their lifecycle, command dispatch, and the
// interrupt-handling side channel.
//
// Grounded on original_source/core/adapter_manager.py: start outputs
// then inputs, stop in reverse, a dedicated interrupt queue drained
// by its own goroutine that re-injects a HIGH-priority USER_SPEECH
// event into the main input queue, and a command-dispatch table keyed
// by InputKind (WAKEWORD -> stop wakeword listening + start voice
// input, CONVERSATION_END -> resume wakeword listening).
package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// InputAdapter produces InputKind events (mic, sensors, scheduler,
// pipes) and reacts to AdapterCommand broadcasts (e.g. pause
// listening while TTS speaks).
type InputAdapter interface {
	Name() string
	HandledKinds() []core.InputKind
	Start(ctx context.Context) error
	Stop() error
	HandleCommand(cmd core.AdapterCommand) bool
}

// OutputAdapter consumes OutputKind events routed to it (speech,
// LEDs, persistence) and also reacts to AdapterCommand broadcasts.
type OutputAdapter interface {
	Name() string
	HandledKinds() []core.OutputKind
	Start(ctx context.Context) error
	Stop() error
	HandleCommand(cmd core.AdapterCommand) bool
	// Offer satisfies router.Subscriber: non-blocking enqueue of an
	// output event onto the adapter's own bounded internal queue.
	Offer(event core.Event) bool
}

// Manager owns every configured adapter's lifecycle, the
// Wakeword/ConversationEnd -> AdapterCommand derivation table, and the
// interrupt side channel.
type Manager struct {
	logger core.Logger

	inputAdapters  []InputAdapter
	outputAdapters []OutputAdapter

	interruptQueue *core.PriorityQueue
	inputQueue     *core.PriorityQueue

	interruptDone chan struct{}
}

// NewManager constructs a Manager. inputQueue is the main input queue
// interrupts get re-injected into; interruptQueue is the dedicated
// side channel interrupt producers write to.
func NewManager(logger core.Logger, inputQueue, interruptQueue *core.PriorityQueue) *Manager {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Manager{
		logger:         logger,
		inputQueue:     inputQueue,
		interruptQueue: interruptQueue,
	}
}

// RegisterInput adds an input adapter under management. Call before Start.
func (m *Manager) RegisterInput(a InputAdapter) {
	m.inputAdapters = append(m.inputAdapters, a)
}

// RegisterOutput adds an output adapter under management. Call before Start.
func (m *Manager) RegisterOutput(a OutputAdapter) {
	m.outputAdapters = append(m.outputAdapters, a)
}

// InputAdapters returns the registered input adapters, in registration order.
func (m *Manager) InputAdapters() []InputAdapter { return m.inputAdapters }

// OutputAdapters returns the registered output adapters, in registration order.
func (m *Manager) OutputAdapters() []OutputAdapter { return m.outputAdapters }

// Start brings up output adapters first so nothing produced by an
// input adapter during its own startup is dropped for lack of a
// listener, then input adapters, then the interrupt handler loop.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.startGroup(ctx, "output", len(m.outputAdapters), func(i int) commandHandler { return m.outputAdapters[i] }, func(i int) error { return m.outputAdapters[i].Start(ctx) }); err != nil {
		return err
	}
	if err := m.startGroup(ctx, "input", len(m.inputAdapters), func(i int) commandHandler { return m.inputAdapters[i] }, func(i int) error { return m.inputAdapters[i].Start(ctx) }); err != nil {
		return err
	}

	m.interruptDone = make(chan struct{})
	go m.interruptLoop(ctx)
	return nil
}

// startGroup brings up every adapter in one direction concurrently via
// errgroup, so a slow device probe in one adapter doesn't serialize
// behind another's. The first error cancels the group and is
// returned; Start as a whole still fails fast like the sequential
// version did.
func (m *Manager) startGroup(ctx context.Context, label string, n int, name func(int) commandHandler, start func(int) error) error {
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := start(i); err != nil {
				return fmt.Errorf("starting %s adapter %s: %w", label, name(i).Name(), err)
			}
			m.logger.Info("started "+label+" adapter", "name", name(i).Name())
			return nil
		})
	}
	return g.Wait()
}

// Stop tears down input adapters first, then output adapters: the
// reverse of Start. Errors are logged and collected but never abort
// the shutdown of the remaining adapters. Each direction is waited on
// for at most 3 seconds; adapters still stopping after that are logged
// with a warning and left behind.
func (m *Manager) Stop() error {
	if m.interruptQueue != nil {
		m.interruptQueue.Close()
	}

var mu sync.Mutex
	var errs []string
	stopAll := func(label string, adapters []commandHandlerStopper) {
		var g errgroup.Group
		for _, a := range adapters {
			a := a
			g.Go(func() error {
				if err := a.Stop(); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Sprintf("%s: %v", a.Name(), err))
					mu.Unlock()
					m.logger.Error("error stopping "+label+" adapter", "name", a.Name(), "error", err)
				}
				return nil
			})
		}
		done := make(chan struct{})
		go func() {
			_ = g.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			m.logger.Warn("timed out waiting for " + label + " adapters to stop")
		}
	}
	stopAll("input", inputStoppers(m.inputAdapters))
	stopAll("output", outputStoppers(m.outputAdapters))
	if m.interruptDone != nil {
		<-m.interruptDone
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) > 0 {
		return fmt.Errorf("errors stopping adapters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// interruptLoop drains the interrupt queue, issues VoiceOutputStop to
// every output adapter that handles Speak, and re-injects the interrupted utterance as a
// HIGH-priority UserSpeech event onto the main input queue.
func (m *Manager) interruptLoop(ctx context.Context) {
	defer close(m.interruptDone)
	m.logger.Info("interrupt handler started")

	for {
		event, ok := m.interruptQueue.Get(ctx)
		if !ok {
			m.logger.Info("interrupt handler stopped")
			return
		}
		if event.InputType != core.Interrupt {
			continue
		}

		m.logger.Warn("interrupt received", "content", event.Content)
		m.handleInterrupt(event)

		replay := core.NewInputEvent(core.UserSpeech, core.HIGH, event.Content, core.WithSource("interrupt"))
		if !m.inputQueue.Offer(replay) {
			m.logger.Warn("dropped replayed interrupt: input queue full")
		}
	}
}

func (m *Manager) handleInterrupt(event core.Event) {
	handled := 0
	for _, a := range m.outputAdapters {
		if !adapterHandles(a.HandledKinds(), core.Speak) {
			continue
		}
		if m.safeHandleCommand(a, core.VoiceOutputStop) {
			handled++
		}
	}
	if handled == 0 {
		m.logger.Warn("VOICE_OUTPUT_STOP not handled by any adapter")
	} else {
		m.logger.Info("VOICE_OUTPUT_STOP handled", "count", handled)
	}
}

// Handle derives the AdapterCommand set implied by an input event
// (Wakeword -> stop wakeword listening + start voice input;
// ConversationEnd -> resume wakeword listening) and broadcasts each to
// every adapter that reports it can handle it.
func (m *Manager) Handle(event core.Event) {
	var commands []core.AdapterCommand
	switch event.InputType {
	case core.Wakeword:
		commands = []core.AdapterCommand{core.WakewordListenStop, core.VoiceInputStart}
	case core.ConversationEnd:
		commands = []core.AdapterCommand{core.WakewordListenStart}
	default:
		return
	}

	for _, cmd := range commands {
		m.Broadcast(cmd)
	}
}

// Broadcast sends cmd to every registered adapter (input and output)
// and returns how many handled it.
func (m *Manager) Broadcast(cmd core.AdapterCommand) int {
	handled := 0
	for _, a := range m.inputAdapters {
		if m.safeHandleCommand(a, cmd) {
			handled++
		}
	}
	for _, a := range m.outputAdapters {
		if m.safeHandleCommand(a, cmd) {
			handled++
		}
	}
	if handled == 0 {
		m.logger.Warn("command not handled by any adapter", "command", string(cmd))
	} else {
		m.logger.Info("command handled", "command", string(cmd), "count", handled)
	}
	return handled
}

type commandHandler interface {
	Name() string
	HandleCommand(cmd core.AdapterCommand) bool
}

// commandHandlerStopper is the narrow surface Stop's fan-out needs:
// any adapter is both nameable and stoppable regardless of direction.
type commandHandlerStopper interface {
	Name() string
	Stop() error
}

func inputStoppers(as []InputAdapter) []commandHandlerStopper {
	out := make([]commandHandlerStopper, len(as))
	for i, a := range as {
		out[i] = a
	}
	return out
}

func outputStoppers(as []OutputAdapter) []commandHandlerStopper {
	out := make([]commandHandlerStopper, len(as))
	for i, a := range as {
		out[i] = a
	}
	return out
}

func (m *Manager) safeHandleCommand(a commandHandler, cmd core.AdapterCommand) (handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic handling command", "adapter", a.Name(), "command", string(cmd), "cause", rec)
			handled = false
		}
	}()
	return a.HandleCommand(cmd)
}

func adapterHandles(kinds []core.OutputKind, want core.OutputKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
