package input

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/audio"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// SpeechIn is the dedicated speech-recognition adapter. Unlike
// Wakeword it never captures on its own: it only opens the microphone
// after a VOICE_INPUT_START command and releases it again on
// VOICE_INPUT_STOP or on a silence timeout, exactly mirroring
// ear_input.py's EarInput.
type SpeechIn struct {
	name        string
	stt         orchestrator.STTProvider
	coordinator *audio.Coordinator
	queue       *core.PriorityQueue
	state       *core.GlobalState
	logger      core.Logger

	maxSilence time.Duration
	lang       orchestrator.Language
	sampleRate int

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
}

// NewSpeechIn builds a SpeechIn adapter.
func NewSpeechIn(name string, stt orchestrator.STTProvider, coordinator *audio.Coordinator, queue *core.PriorityQueue, state *core.GlobalState, maxSilence time.Duration, lang orchestrator.Language, logger core.Logger) *SpeechIn {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &SpeechIn{
		name:        name,
		stt:         stt,
		coordinator: coordinator,
		queue:       queue,
		state:       state,
		maxSilence:  maxSilence,
		lang:        lang,
		sampleRate:  16000,
		logger:      logger,
	}
}

// BuildSpeechIn is the factory.InputBuilder for implementation "speechin".
// stt/coordinator/state are closed over at wiring time since they're
// shared services, not per-adapter config.
func BuildSpeechIn(stt orchestrator.STTProvider, coordinator *audio.Coordinator, queue *core.PriorityQueue, state *core.GlobalState, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		maxSilence := time.Duration(cfgutil.Float64(cfg, "max_silence_seconds", 10)) * time.Second
		lang := orchestrator.Language(cfgutil.String(cfg, "language", string(orchestrator.LanguageIt)))
		return NewSpeechIn(name, stt, coordinator, queue, state, maxSilence, lang, logger), nil
	}
}

func (s *SpeechIn) Name() string { return s.name }

func (s *SpeechIn) HandledKinds() []core.InputKind {
	return []core.InputKind{core.UserSpeech, core.ConversationEnd}
}

// Start marks the adapter ready; the conversation loop itself only
// begins on a VOICE_INPUT_START command.
func (s *SpeechIn) Start(ctx context.Context) error {
	s.logger.Info("speechin adapter started, waiting for voice_input_start", "name", s.name)
	return nil
}

func (s *SpeechIn) Stop() error {
	s.mu.Lock()
	active := s.active
	stop := s.stopCh
	s.mu.Unlock()
	if active && stop != nil {
		close(stop)
	}
	return nil
}

func (s *SpeechIn) HandleCommand(cmd core.AdapterCommand) bool {
	switch cmd {
	case core.VoiceInputStart:
		s.startConversation()
		return true
	case core.VoiceInputStop:
		s.mu.Lock()
		if s.active && s.stopCh != nil {
			close(s.stopCh)
			s.stopCh = nil
		}
		s.mu.Unlock()
		return true
	default:
		return false
	}
}

func (s *SpeechIn) startConversation() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		s.logger.Debug("speechin: conversation already active, ignoring start")
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	go s.conversationLoop(stop)
}

// conversationLoop opens the shared duplex device, accumulates audio
// while the user speaks (tracked via a lightweight energy gate), and
// transcribes on each detected pause. The silence timer resets
// whenever Buddy finishes speaking, matching EarInput._conversation_loop.
func (s *SpeechIn) conversationLoop(stop chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		s.coordinator.Release()

		event := core.NewInputEvent(core.ConversationEnd, core.HIGH, nil, core.WithSource(s.name))
		if !s.queue.Offer(event) {
			s.logger.Warn("speechin: input queue full, dropped conversation_end")
		}
		s.logger.Info("speechin: conversation ended", "name", s.name)
	}()

	if err := s.coordinator.RequestInput(); err != nil {
		s.logger.Warn("speechin: device busy, aborting conversation start", "error", err)
		return
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		s.logger.Error("speechin: init audio context failed", "error", err)
		return
	}
	defer malgoCtx.Uninit()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(s.sampleRate)

	var bufMu sync.Mutex
	var buf bytes.Buffer
	vad := orchestrator.NewRMSVAD(0.02, 800*time.Millisecond)

	utterance := make(chan []byte, 4)

	onSamples := func(_, input []byte, _ uint32) {
		bufMu.Lock()
		buf.Write(input)
		bufMu.Unlock()

		event, _ := vad.Process(input)
		if event == nil {
			return
		}
		if event.Type == orchestrator.VADSpeechEnd {
			bufMu.Lock()
			captured := make([]byte, buf.Len())
			copy(captured, buf.Bytes())
			buf.Reset()
			bufMu.Unlock()
			select {
			case utterance <- captured:
			default:
				s.logger.Warn("speechin: utterance channel full, dropping audio")
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceCfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		s.logger.Error("speechin: init capture device failed", "error", err)
		return
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		s.logger.Error("speechin: start capture device failed", "error", err)
		return
	}

	lastInteraction := time.Now()
	wasSpeaking := false
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case audioBytes := <-utterance:
			lastInteraction = time.Now()
			s.transcribe(audioBytes)
		case <-ticker.C:
			speaking := s.state.IsSpeaking()
			if wasSpeaking && !speaking {
				lastInteraction = time.Now()
			}
			wasSpeaking = speaking
			if !speaking && time.Since(lastInteraction) > s.maxSilence {
				s.logger.Info("speechin: silence timeout, ending session", "name", s.name)
				return
			}
		}
	}
}

func (s *SpeechIn) transcribe(audioBytes []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	text, err := s.stt.Transcribe(ctx, audioBytes, s.lang)
	if err != nil {
		s.logger.Error("speechin: transcription error", "error", err)
		return
	}
	if text == "" {
		return
	}

	s.logger.Info("speechin: recognized", "text", text)
	event := core.NewInputEvent(core.UserSpeech, core.HIGH, text, core.WithSource("voice"))
	if !s.queue.Offer(event) {
		s.logger.Warn("speechin: input queue full, dropped transcript")
	}
}
