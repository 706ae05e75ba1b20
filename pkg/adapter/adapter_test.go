package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// lifecycleSeq stamps every fake Start/Stop call so tests can check
// the order in which the Manager reached each adapter.
var lifecycleSeq atomic.Int64

type fakeInput struct {
	mu       sync.Mutex
	name     string
	kinds    []core.InputKind
	started  bool
	stopped  bool
	startSeq int64
	stopSeq  int64
	commands []core.AdapterCommand
}

func (f *fakeInput) Name() string                   { return f.name }
func (f *fakeInput) HandledKinds() []core.InputKind { return f.kinds }
func (f *fakeInput) Start(ctx context.Context) error {
	f.started = true
	f.startSeq = lifecycleSeq.Add(1)
	return nil
}
func (f *fakeInput) Stop() error {
	f.stopped = true
	f.stopSeq = lifecycleSeq.Add(1)
	return nil
}
func (f *fakeInput) HandleCommand(cmd core.AdapterCommand) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return true
}

type fakeOutput struct {
	mu       sync.Mutex
	name     string
	kinds    []core.OutputKind
	started  bool
	stopped  bool
	startSeq int64
	stopSeq  int64
	commands []core.AdapterCommand
	offered  []core.Event
}

func (f *fakeOutput) Name() string                    { return f.name }
func (f *fakeOutput) HandledKinds() []core.OutputKind { return f.kinds }
func (f *fakeOutput) Start(ctx context.Context) error {
	f.started = true
	f.startSeq = lifecycleSeq.Add(1)
	return nil
}
func (f *fakeOutput) Stop() error {
	f.stopped = true
	f.stopSeq = lifecycleSeq.Add(1)
	return nil
}
func (f *fakeOutput) Offer(event core.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offered = append(f.offered, event)
	return true
}
func (f *fakeOutput) HandleCommand(cmd core.AdapterCommand) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return true
}

func newTestManager() (*Manager, *core.PriorityQueue, *core.PriorityQueue) {
	in := core.NewPriorityQueue(10)
	interrupt := core.NewPriorityQueue(10)
	return NewManager(core.NoOpLogger{}, in, interrupt), in, interrupt
}

func TestStartStartsOutputsBeforeInputs(t *testing.T) {
	mgr, _, _ := newTestManager()
	in := &fakeInput{name: "in"}
	out := &fakeOutput{name: "out"}
	mgr.RegisterInput(in)
	mgr.RegisterOutput(out)

	require.NoError(t, mgr.Start(context.Background()))
	defer mgr.Stop()

	assert.True(t, in.started)
	assert.True(t, out.started)
	assert.Less(t, out.startSeq, in.startSeq, "output adapter must start before input adapter")
}

func TestStopStopsInputsBeforeOutputs(t *testing.T) {
	mgr, _, _ := newTestManager()
	in := &fakeInput{name: "in"}
	out := &fakeOutput{name: "out"}
	mgr.RegisterInput(in)
	mgr.RegisterOutput(out)

	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Stop())

	assert.True(t, in.stopped)
	assert.True(t, out.stopped)
	assert.Less(t, in.stopSeq, out.stopSeq, "input adapter must stop before output adapter")
}

func TestHandleWakewordDerivesCommands(t *testing.T) {
	mgr, _, _ := newTestManager()
	in := &fakeInput{name: "wakeword"}
	mgr.RegisterInput(in)

	mgr.Handle(core.NewInputEvent(core.Wakeword, core.NORMAL, nil))

	in.mu.Lock()
	defer in.mu.Unlock()
	require.Len(t, in.commands, 2)
	assert.Equal(t, core.WakewordListenStop, in.commands[0])
	assert.Equal(t, core.VoiceInputStart, in.commands[1])
}

func TestHandleConversationEndResumesWakeword(t *testing.T) {
	mgr, _, _ := newTestManager()
	in := &fakeInput{name: "wakeword"}
	mgr.RegisterInput(in)

	mgr.Handle(core.NewInputEvent(core.ConversationEnd, core.HIGH, nil))

	in.mu.Lock()
	defer in.mu.Unlock()
	require.Len(t, in.commands, 1)
	assert.Equal(t, core.WakewordListenStart, in.commands[0])
}

func TestInterruptLoopStopsVoiceOutputAndReplaysUserSpeech(t *testing.T) {
	mgr, inputQueue, interruptQueue := newTestManager()
	voice := &fakeOutput{name: "voice", kinds: []core.OutputKind{core.Speak}}
	mgr.RegisterOutput(voice)

	require.NoError(t, mgr.Start(context.Background()))
	defer mgr.Stop()

	interruptQueue.Offer(core.NewInputEvent(core.Interrupt, core.CRITICAL, "stop that"))

	deadline := time.After(time.Second)
	for {
		voice.mu.Lock()
		got := len(voice.commands)
		voice.mu.Unlock()
		if got > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("voice adapter never received VoiceOutputStop")
		case <-time.After(5 * time.Millisecond):
		}
	}

	voice.mu.Lock()
	assert.Equal(t, core.VoiceOutputStop, voice.commands[0])
	voice.mu.Unlock()

	replay, ok := inputQueue.Get(context.Background())
	require.True(t, ok, "expected replayed event on input queue")
	assert.Equal(t, core.UserSpeech, replay.InputType)
	assert.Equal(t, core.HIGH, replay.Priority)
	assert.Equal(t, "interrupt", replay.Source)
}

func TestFactoryDisabledImplementationReturnsNil(t *testing.T) {
	f := NewFactory()
	a, err := f.CreateInput("mic", "disabled", nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestFactoryUnknownImplementationErrors(t *testing.T) {
	f := NewFactory()
	_, err := f.CreateInput("mic", "nonexistent", nil)
	assert.Error(t, err)
}

func TestFactoryBuildsRegisteredImplementation(t *testing.T) {
	f := NewFactory()
	f.RegisterInput("mock", func(name string, cfg map[string]any) (InputAdapter, error) {
		return &fakeInput{name: name}, nil
	})

	a, err := f.CreateInput("mic", "mock", nil)
	require.NoError(t, err)
	assert.Equal(t, "mic_mock", a.Name())
}
