package brain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	return s.reply, s.err
}
func (s *stubLLM) Name() string { return "stub" }

func newTestBrain(t *testing.T, cfg Config) *Brain {
	t.Helper()
	if cfg.ModelID == "" {
		cfg.ModelID = "test-model"
	}
	if cfg.ArchivistInterval == 0 {
		cfg.ArchivistInterval = time.Hour
	}
	if cfg.LightOffTimeout == 0 {
		cfg.LightOffTimeout = time.Hour
	}
	b, err := New(&stubLLM{reply: "ciao"}, core.NewGlobalState(), core.NoOpLogger{}, cfg)
	require.NoError(t, err)
	return b
}

func TestNewRequiresModelID(t *testing.T) {
	_, err := New(&stubLLM{}, core.NewGlobalState(), core.NoOpLogger{}, Config{ArchivistInterval: time.Second})
	assert.Error(t, err)
}

func TestHandleWakewordEmitsLedAndCommands(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, commands := b.Process(core.NewInputEvent(core.Wakeword, core.NORMAL, nil))

	require.Len(t, outputs, 1)
	assert.Equal(t, core.LedControl, outputs[0].OutputType)
	require.Len(t, commands, 2)
	assert.Equal(t, core.WakewordListenStop, commands[0])
	assert.Equal(t, core.VoiceInputStart, commands[1])
}

func TestHandleConversationEndEmitsLedOffAndResumesWakeword(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, commands := b.Process(core.NewInputEvent(core.ConversationEnd, core.HIGH, nil))

	require.Len(t, outputs, 1)
	assert.Equal(t, core.LedControl, outputs[0].OutputType)
	require.Len(t, commands, 1)
	assert.Equal(t, core.WakewordListenStart, commands[0])
}

func TestHandleUserSpeechFromVoiceSpeaksReply(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, _ := b.Process(core.NewInputEvent(core.UserSpeech, core.HIGH, "ciao", core.WithSource("voice")))

	var sawSpeak, sawSaveHistoryUser, sawSaveHistoryModel bool
	for _, o := range outputs {
		switch o.OutputType {
		case core.Speak:
			sawSpeak = true
			assert.Equal(t, core.HIGH, o.Priority)
		case core.SaveHistory:
			if o.MetaString("role") == "user" {
				sawSaveHistoryUser = true
			}
			if o.MetaString("role") == "model" {
				sawSaveHistoryModel = true
			}
		}
	}
	assert.True(t, sawSpeak, "expected a Speak output")
	assert.True(t, sawSaveHistoryUser, "expected a SaveHistory output for the user turn")
	assert.True(t, sawSaveHistoryModel, "expected a SaveHistory output for the model turn")
}

func TestHandleUserSpeechFromNonVoiceDoesNotSpeak(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, _ := b.Process(core.NewInputEvent(core.UserSpeech, core.HIGH, "ciao", core.WithSource("pipe")))

	for _, o := range outputs {
		assert.NotEqual(t, core.Speak, o.OutputType, "expected no Speak output for a non-voice source")
	}
}

func TestHandleShutdownSpeaksOnlyForVoiceSource(t *testing.T) {
	b := newTestBrain(t, Config{})

	outputs, _ := b.Process(core.NewInputEvent(core.Shutdown, core.CRITICAL, nil, core.WithSource("voice")))
	require.Len(t, outputs, 1)
	assert.Equal(t, core.Speak, outputs[0].OutputType)
	assert.Equal(t, core.CRITICAL, outputs[0].Priority)

	outputs, _ = b.Process(core.NewInputEvent(core.Shutdown, core.CRITICAL, nil, core.WithSource("pipe")))
	assert.Empty(t, outputs, "expected none for non-voice shutdown")
}

func TestArchivistTriggerFiresExactlyOncePerInterval(t *testing.T) {
	b := newTestBrain(t, Config{ArchivistInterval: 5 * time.Second})
	base := time.Now()
	b.now = func() time.Time { return base }
	b.session.lastArchivistTS = base

	b.now = func() time.Time { return base }
	outputs, _ := b.Process(core.NewInputEvent(core.SensorTemperature, core.NORMAL, 20.0))
	assert.False(t, hasKind(outputs, core.DistillMemory), "did not expect DistillMemory at t=0")

	b.now = func() time.Time { return base.Add(2 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorTemperature, core.NORMAL, 20.0))
	assert.False(t, hasKind(outputs, core.DistillMemory), "did not expect DistillMemory at t=2s")

	b.now = func() time.Time { return base.Add(6 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorTemperature, core.NORMAL, 20.0))
	assert.True(t, hasKind(outputs, core.DistillMemory), "expected exactly one DistillMemory at t=6s")

	b.now = func() time.Time { return base.Add(7 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorTemperature, core.NORMAL, 20.0))
	assert.False(t, hasKind(outputs, core.DistillMemory), "did not expect a second DistillMemory immediately after the first")
}

func TestPresenceLightOffTimerScenario(t *testing.T) {
	b := newTestBrain(t, Config{LightOffTimeout: 180 * time.Second})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	b.now = func() time.Time { return base }
	outputs, _ := b.Process(core.NewInputEvent(core.SensorPresence, core.LOW, false))
	assert.Empty(t, outputs, "t=0: want none")

	b.now = func() time.Time { return base.Add(60 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorPresence, core.LOW, true))
	assert.Empty(t, outputs, "t=60: want none (timer cancelled)")

	b.now = func() time.Time { return base.Add(120 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorPresence, core.LOW, false))
	assert.Empty(t, outputs, "t=120: want none (timer restarted)")

	b.now = func() time.Time { return base.Add(310 * time.Second) }
	outputs, _ = b.Process(core.NewInputEvent(core.SensorTemperature, core.NORMAL, 20.0))
	speaks := 0
	for _, o := range outputs {
		if o.OutputType == core.Speak {
			speaks++
		}
	}
	assert.Equal(t, 2, speaks, "t=310: want 2 (the Alexa two-step)")
}

func TestHandleSensorPresenceTracksPresenceAndAbsenceIndependently(t *testing.T) {
	b := newTestBrain(t, Config{})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	b.now = func() time.Time { return base }
	b.Process(core.NewInputEvent(core.SensorPresence, core.LOW, true))
	assert.Equal(t, base, b.state.LastPresence())
	assert.True(t, b.state.LastAbsence().IsZero(), "absence should not be touched by a present=true reading")

	later := base.Add(5 * time.Minute)
	b.now = func() time.Time { return later }
	b.Process(core.NewInputEvent(core.SensorPresence, core.LOW, false))
	assert.Equal(t, later, b.state.LastAbsence())
	assert.Equal(t, base, b.state.LastPresence(), "a present=false reading must not overwrite LastPresence")
}

func TestDirectOutputUnwrapsInnerEvent(t *testing.T) {
	b := newTestBrain(t, Config{})
	inner := core.NewOutputEvent(core.Speak, core.HIGH, "hello")
	outputs, _ := b.Process(core.NewInputEvent(core.DirectOutput, core.NORMAL, inner))

	require.Len(t, outputs, 1)
	assert.Equal(t, core.Speak, outputs[0].OutputType)
	assert.Equal(t, "hello", outputs[0].Content)
}

func TestDirectOutputInvalidPayloadIsDropped(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, _ := b.Process(core.NewInputEvent(core.DirectOutput, core.NORMAL, "not an event"))
	assert.Empty(t, outputs, "want none for invalid payload")
}

func TestAdapterCommandParsesKnownName(t *testing.T) {
	b := newTestBrain(t, Config{})
	_, commands := b.Process(core.NewInputEvent(core.AdapterCommandKind, core.NORMAL, "voice_input_start"))
	require.Len(t, commands, 1)
	assert.Equal(t, core.VoiceInputStart, commands[0])
}

func TestAdapterCommandUnknownNameYieldsNoCommand(t *testing.T) {
	b := newTestBrain(t, Config{})
	_, commands := b.Process(core.NewInputEvent(core.AdapterCommandKind, core.NORMAL, "not_a_command"))
	assert.Empty(t, commands)
}

func TestChatSessionResetClearsHistory(t *testing.T) {
	b := newTestBrain(t, Config{})
	b.Process(core.NewInputEvent(core.UserSpeech, core.HIGH, "ciao", core.WithSource("voice")))
	require.NotEmpty(t, b.session.MessagesForLLM(), "expected history to be non-empty before reset")

	b.Process(core.NewInputEvent(core.ChatSessionReset, core.NORMAL, nil))
	assert.Empty(t, b.session.MessagesForLLM(), "expected history to be empty after ChatSessionReset")
}

func TestTriggerArchivistBypassesIntervalCheck(t *testing.T) {
	b := newTestBrain(t, Config{ArchivistInterval: time.Hour})
	outputs, _ := b.Process(core.NewInputEvent(core.TriggerArchivist, core.NORMAL, nil))
	assert.True(t, hasKind(outputs, core.DistillMemory), "expected immediate DistillMemory from TriggerArchivist")
}

func TestLightOnInputRewrapsToBulbOutput(t *testing.T) {
	b := newTestBrain(t, Config{})
	outputs, _ := b.Process(core.NewInputEvent(core.LightOnInput, core.NORMAL, "stanza"))
	require.Len(t, outputs, 1)
	assert.Equal(t, core.LightOnOutput, outputs[0].OutputType)
	assert.Equal(t, "stanza", outputs[0].Content)
}

func hasKind(events []core.Event, kind core.OutputKind) bool {
	for _, e := range events {
		if e.OutputType == kind {
			return true
		}
	}
	return false
}
