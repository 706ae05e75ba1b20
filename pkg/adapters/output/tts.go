package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/audio"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// TTS synthesizes Speak events through an orchestrator.TTSProvider and
// plays the resulting PCM through the shared duplex device, grounded
// on voice_output.py's JabraVoiceOutput. A VoiceOutputStop command
// aborts whatever synthesis/playback is in flight.
type TTS struct {
	*base
	provider    orchestrator.TTSProvider
	coordinator *audio.Coordinator
	state       *core.GlobalState
	voice       orchestrator.Voice
	lang        orchestrator.Language
	sampleRate  int

	mu        sync.Mutex
	playing   bool
	device    *malgo.Device
	malgoCt   *malgo.AllocatedContext
	pendingCh chan []byte
}

// NewTTS builds a TTS output adapter.
func NewTTS(name string, queueSize int, provider orchestrator.TTSProvider, coordinator *audio.Coordinator, state *core.GlobalState, voice orchestrator.Voice, lang orchestrator.Language, logger core.Logger) *TTS {
	t := &TTS{
		provider:    provider,
		coordinator: coordinator,
		state:       state,
		voice:       voice,
		lang:        lang,
		sampleRate:  22050,
	}
	t.base = newBase(name, queueSize, logger, t.handle)
	return t
}

// BuildTTS is the factory.OutputBuilder for implementation "tts".
func BuildTTS(provider orchestrator.TTSProvider, coordinator *audio.Coordinator, state *core.GlobalState, logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		queueSize := cfgutil.Int(cfg, "queue_maxsize", 50)
		voice := orchestrator.Voice(cfgutil.String(cfg, "voice_name", string(orchestrator.VoiceF1)))
		lang := orchestrator.Language(cfgutil.String(cfg, "language", string(orchestrator.LanguageIt)))
		return NewTTS(name, queueSize, provider, coordinator, state, voice, lang, logger), nil
	}
}

func (t *TTS) Name() string { return t.base.name }

func (t *TTS) HandledKinds() []core.OutputKind { return []core.OutputKind{core.Speak} }

func (t *TTS) Start(ctx context.Context) error {
	t.startWorker()
	t.logger.Info("tts output adapter started", "name", t.Name(), "voice", t.voice)
	return nil
}

func (t *TTS) Stop() error {
	t.stopWorker()
	t.teardownDevice()
	t.logger.Info("tts output adapter stopped", "name", t.Name())
	return nil
}

func (t *TTS) HandleCommand(cmd core.AdapterCommand) bool {
	if cmd != core.VoiceOutputStop {
		return false
	}
	t.mu.Lock()
	playing := t.playing
	t.mu.Unlock()
	if !playing {
		return false
	}
	if err := t.provider.Abort(); err != nil {
		t.logger.Warn("tts: abort error", "error", err)
	}
	t.teardownDevice()
	t.state.SetSpeaking(false)
	t.coordinator.Release()
	return true
}

func (t *TTS) handle(event core.Event) {
	text, ok := event.Content.(string)
	if !ok || text == "" {
		t.logger.Warn("tts: speak event missing text content")
		return
	}

	t.coordinator.RequestOutput()
	t.state.SetSpeaking(true)
	defer func() {
		t.state.SetSpeaking(false)
		t.coordinator.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := t.provider.StreamSynthesize(ctx, text, t.voice, t.lang, func(chunk []byte) error {
		return t.play(chunk)
	})
	if err != nil {
		t.logger.Error("tts: synthesis error", "error", err)
	}
}

func (t *TTS) play(chunk []byte) error {
	t.mu.Lock()
	if t.device == nil {
		if err := t.setupDeviceLocked(); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("tts: setup playback device: %w", err)
		}
	}
	t.mu.Unlock()

	_, err := t.writePCM(chunk)
	return err
}

func (t *TTS) setupDeviceLocked() error {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatS16
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = uint32(t.sampleRate)

	pending := make(chan []byte, 64)
	onPlayback := func(output, _ []byte, frameCount uint32) {
		select {
		case chunk := <-pending:
			copy(output, chunk)
		default:
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceCfg, malgo.DeviceCallbacks{Data: onPlayback})
	if err != nil {
		malgoCtx.Uninit()
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return err
	}

	t.malgoCt = malgoCtx
	t.device = device
	t.playing = true
	t.pendingCh = pending
	return nil
}

func (t *TTS) writePCM(chunk []byte) (int, error) {
	t.mu.Lock()
	ch := t.pendingCh
	t.mu.Unlock()
	if ch == nil {
		return 0, fmt.Errorf("tts: playback device not ready")
	}
	select {
	case ch <- chunk:
		return len(chunk), nil
	default:
		t.logger.Warn("tts: playback buffer full, dropping chunk")
		return 0, nil
	}
}

func (t *TTS) teardownDevice() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device != nil {
		t.device.Uninit()
		t.device = nil
	}
	if t.malgoCt != nil {
		t.malgoCt.Uninit()
		t.malgoCt = nil
	}
	t.pendingCh = nil
	t.playing = false
}
