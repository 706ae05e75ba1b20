package brain

import (
	"context"
	"fmt"
	"time"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// ascolto is the LED identifier used by the wakeword/listening
// indicator, matching the name the original Python config uses.
const ascolto = "ascolto"

// Config holds the construction-time parameters BuddyBrain.__init__
// requires (model_id, archivist_interval) plus the light-off timeout
// the original reads from the scheduler adapter's config and the
// Brain shares via the presence handlers.
type Config struct {
	ModelID           string
	SystemInstruction string
	Temperature       float64
	ArchivistInterval time.Duration
	LightOffTimeout   time.Duration
	// ProactiveLighting gates the Brain's own SensorPresence-driven
	// "turn on all lights" behavior. When a scheduler adapter already
	// owns presence/light logic, set this false to avoid double-firing
	// (see DESIGN.md's Open Question resolution).
	ProactiveLighting bool
}

// HandlerFunc is one InputKind's decision logic: given the event and
// the live session/state, return the output events and adapter
// commands it implies.
type HandlerFunc func(ctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand)

// handlerContext bundles everything a handler needs without exposing
// the Brain's internals directly to handler functions.
type handlerContext struct {
	brain *Brain
	now   time.Time
}

// Brain is the decision layer: process(event) -> (outputs, commands).
// Grounded on core/brain.py's BuddyBrain.
type Brain struct {
	llm     orchestrator.LLMProvider
	session *Session
	state   *core.GlobalState
	logger  core.Logger
	cfg     Config

	handlers map[core.InputKind]HandlerFunc

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Brain. llm and state must be non-nil; model_id is
// required per the original's fail-fast __init__ contract.
func New(llm orchestrator.LLMProvider, state *core.GlobalState, logger core.Logger, cfg Config) (*Brain, error) {
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("brain: model_id is required")
	}
	if cfg.ArchivistInterval <= 0 {
		return nil, fmt.Errorf("brain: archivist_interval must be positive")
	}
	if llm == nil {
		return nil, fmt.Errorf("brain: llm provider is required")
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	b := &Brain{
		llm:     llm,
		session: NewSession(cfg.SystemInstruction, cfg.ArchivistInterval, cfg.LightOffTimeout),
		state:   state,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	b.handlers = map[core.InputKind]HandlerFunc{
		core.DirectOutput:        handleDirectOutput,
		core.AdapterCommandKind:  handleAdapterCommand,
		core.Wakeword:            handleWakeword,
		core.ConversationEnd:     handleConversationEnd,
		core.UserSpeech:          handleUserSpeech,
		core.SensorPresence:      handleSensorPresence,
		core.SensorMovement:      handleSensorMovement,
		core.SensorTemperature:   handleSensorTemperature,
		core.Shutdown:            handleShutdown,
		core.Restart:             handleRestart,
		core.ChatSessionReset:    handleChatSessionReset,
		core.TriggerArchivist:    handleTriggerArchivist,
		core.LightOnInput:        handleLightOn,
		core.LightOffInput:       handleLightOff,
		core.Interrupt:           handleUnhandledNoOutput,
	}
	return b, nil
}

// Session exposes the Brain's conversational/timer state, e.g. for a
// scheduler adapter or tests that need to force an archivist/light-off
// transition.
func (b *Brain) Session() *Session { return b.session }

// Process runs the handler for event.InputType, then appends the two
// timer checks run after every event regardless of kind.
func (b *Brain) Process(event core.Event) ([]core.Event, []core.AdapterCommand) {
	now := b.now()
	hctx := &handlerContext{brain: b, now: now}

	handler, ok := b.handlers[event.InputType]
	if !ok {
		b.logger.Warn("no handler for input kind", "kind", string(event.InputType))
		return b.appendTimers(hctx, nil, nil)
	}

	outputs, commands := handler(hctx, event)
	return b.appendTimers(hctx, outputs, commands)
}

// Tick runs only the archivist/light-off timer checks, with no input
// event to dispatch. The main loop calls this on every dequeue
// timeout so both timers keep firing during quiet periods, without
// routing a synthetic event through the handler table.
func (b *Brain) Tick() []core.Event {
	hctx := &handlerContext{brain: b, now: b.now()}
	outputs, _ := b.appendTimers(hctx, nil, nil)
	return outputs
}

func (b *Brain) appendTimers(hctx *handlerContext, outputs []core.Event, commands []core.AdapterCommand) ([]core.Event, []core.AdapterCommand) {
	if archivistEvent, ok := b.checkArchivistTrigger(hctx.now); ok {
		outputs = append(outputs, archivistEvent)
	}
	outputs = append(outputs, b.checkLightOffTimer(hctx.now)...)
	return outputs, commands
}

// checkArchivistTrigger implements core/brain.py's
// _check_archivist_trigger: now - last_archivist_ts >= interval emits
// exactly one DistillMemory at LOW priority and resets the clock.
func (b *Brain) checkArchivistTrigger(now time.Time) (core.Event, bool) {
	if !b.session.archivistDue(now) {
		return core.Event{}, false
	}
	b.session.markArchivistNow(now)
	return core.NewOutputEvent(core.DistillMemory, core.LOW, nil), true
}

// checkLightOffTimer implements _check_light_off_timer: an expired
// presence_lost_ts emits the two-step "Alexa, turn off all lights"
// sequence and clears the timer.
func (b *Brain) checkLightOffTimer(now time.Time) []core.Event {
	if !b.session.lightOffDue(now) {
		return nil
	}
	b.state.SetLightOn(false)
	return alexaTwoStep("spegni tutte le luci", "light_off_timer")
}

// alexaTwoStep emits the "Alexa; <command>" two-speak sequence, both
// HIGH priority, tagged with triggered_by metadata. Ordering relative
// to each other is guaranteed by the per-consumer priority queue
// processing one event to completion before the next; we do not sleep
// between them as the original Python did.
func alexaTwoStep(command, triggeredBy string) []core.Event {
	return []core.Event{
		core.NewOutputEvent(core.Speak, core.HIGH, "Alexa;", core.WithMetadata(map[string]any{"triggered_by": triggeredBy})),
		core.NewOutputEvent(core.Speak, core.HIGH, command, core.WithMetadata(map[string]any{"triggered_by": triggeredBy})),
	}
}

func handleUnhandledNoOutput(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	return nil, nil
}

func handleDirectOutput(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	inner, ok := event.Content.(core.Event)
	if !ok || !inner.IsOutput() {
		hctx.brain.logger.Warn("invalid direct_output payload", "content", event.Content)
		return nil, nil
	}
	return []core.Event{inner}, nil
}

func handleAdapterCommand(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	name, ok := event.Content.(string)
	if !ok {
		hctx.brain.logger.Warn("adapter_command content is not a string", "content", event.Content)
		return nil, nil
	}
	cmd, ok := core.ParseAdapterCommand(name)
	if !ok {
		hctx.brain.logger.Error("unknown adapter command", "name", name, "error", core.ErrUnknownAdapterCommand, "valid", core.AdapterCommandNames())
		return nil, nil
	}
	return nil, []core.AdapterCommand{cmd}
}

func handleWakeword(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	led := core.NewOutputEvent(core.LedControl, core.NORMAL, nil, core.WithMetadata(map[string]any{
		"led": ascolto, "command": "blink", "continuous": true, "on_time": 0.5, "off_time": 0.5,
	}))
	return []core.Event{led}, []core.AdapterCommand{core.WakewordListenStop, core.VoiceInputStart}
}

func handleConversationEnd(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	led := core.NewOutputEvent(core.LedControl, core.NORMAL, nil, core.WithMetadata(map[string]any{
		"led": ascolto, "command": "off",
	}))
	hctx.brain.state.SetConversationEnd(hctx.now)
	return []core.Event{led}, []core.AdapterCommand{core.WakewordListenStart}
}

func handleUserSpeech(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	b := hctx.brain
	text, _ := event.Content.(string)

	outputs := []core.Event{
		core.NewOutputEvent(core.SaveHistory, core.NORMAL, text, core.WithMetadata(map[string]any{"role": "user"})),
	}
	b.session.AddMessage("user", text)

	reply, err := b.llm.Complete(context.Background(), b.session.MessagesForLLM())
	if err != nil {
		b.logger.Error("llm completion failed", "error", err)
		reply = "Scusa, ho avuto un problema a rispondere."
	}
	b.session.AddMessage("assistant", reply)

	outputs = append(outputs, core.NewOutputEvent(core.SaveHistory, core.NORMAL, reply, core.WithMetadata(map[string]any{"role": "model"})))

	if event.Source == "voice" {
		outputs = append(outputs, core.NewOutputEvent(core.Speak, core.HIGH, reply))
	}
	return outputs, nil
}

func handleSensorPresence(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	b := hctx.brain
	present, _ := event.Content.(bool)

	if present {
		b.state.SetPresence(hctx.now)
		if b.session.cancelPresenceLost() {
			return nil, nil
		}
		if !b.cfg.ProactiveLighting {
			return nil, nil
		}
		hour := hctx.now.Hour()
		if hour >= 18 || hour < 7 {
			return alexaTwoStep("accendi tutte le luci", "sensor_presence"), nil
		}
		return nil, nil
	}

	b.session.setPresenceLost(hctx.now)
	b.state.SetAbsence(hctx.now)
	return nil, nil
}

func handleSensorMovement(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	hctx.brain.logger.Debug("sensor movement", "detected", event.Content)
	return nil, nil
}

func handleSensorTemperature(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	temp, _ := event.Content.(float64)
	humidity := event.MetaFloat("humidity")
	hctx.brain.state.SetTemperature(temp, humidity)
	return nil, nil
}

func handleShutdown(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	if event.Source != "voice" {
		return nil, nil
	}
	return []core.Event{core.NewOutputEvent(core.Speak, core.CRITICAL, "A dopo!")}, nil
}

func handleRestart(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	var outputs []core.Event
	if event.Source == "voice" {
		outputs = append(outputs, core.NewOutputEvent(core.Speak, core.CRITICAL, "Torno subito."))
	}
	return outputs, nil
}

func handleChatSessionReset(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	hctx.brain.session.Reset()
	return nil, nil
}

func handleTriggerArchivist(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	hctx.brain.session.markArchivistNow(hctx.now)
	return []core.Event{core.NewOutputEvent(core.DistillMemory, core.LOW, nil)}, nil
}

func handleLightOn(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	target, _ := event.Content.(string)
	hctx.brain.state.SetLightOn(true)
	return []core.Event{core.NewOutputEvent(core.LightOnOutput, core.NORMAL, target)}, nil
}

func handleLightOff(hctx *handlerContext, event core.Event) ([]core.Event, []core.AdapterCommand) {
	target, _ := event.Content.(string)
	hctx.brain.state.SetLightOn(false)
	return []core.Event{core.NewOutputEvent(core.LightOffOutput, core.NORMAL, target)}, nil
}
