// Package input holds the concrete InputAdapter implementations:
// microphone-driven wakeword/speech adapters, sensor bridges, the
// scheduler, and the named-pipe IPC reader.
package input

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

// Detector decides whether a captured frame contains the wakeword.
// Kept narrow so the adapter doesn't depend on any one wakeword
// engine; a real deployment wires an onnx/porcupine-backed detector,
// tests wire a scripted one.
type Detector interface {
	Process(frame []int16) bool
}

// EnergyDetector is a minimal threshold-based Detector: it fires once
// per sustained burst above threshold, re-arming only after the frame
// drops back below it. Useful as a default when no dedicated wakeword
// engine is configured.
type EnergyDetector struct {
	Threshold float64
	armed     bool
}

func (d *EnergyDetector) Process(frame []int16) bool {
	if len(frame) == 0 {
		return false
	}
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := sum / float64(len(frame))
	above := rms > d.Threshold*d.Threshold
	fired := above && !d.armed
	d.armed = above
	return fired
}

// Wakeword listens continuously on the shared capture device for a
// wakeword and pushes a HIGH-priority core.Wakeword event. It can be
// paused/resumed via WakewordListenStop/WakewordListenStart without
// tearing down the capture stream, mirroring wakeword_input.py's
// _paused flag.
type Wakeword struct {
	name        string
	wakeword    string
	detector    Detector
	queue       *core.PriorityQueue
	logger      core.Logger
	sampleRate  int
	frameLength int
	deviceIndex int

	mu      sync.Mutex
	paused  bool
	running bool

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewWakeword builds a Wakeword adapter. detector is required; pass an
// *EnergyDetector for a dependency-free default.
func NewWakeword(name string, wakeword string, detector Detector, queue *core.PriorityQueue, logger core.Logger) *Wakeword {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Wakeword{
		name:        name,
		wakeword:    wakeword,
		detector:    detector,
		queue:       queue,
		logger:      logger,
		sampleRate:  16000,
		frameLength: 512,
	}
}

// BuildWakeword is the factory.InputBuilder for implementation "wakeword".
func BuildWakeword(queue *core.PriorityQueue, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		wakeword, err := cfgutil.RequiredString(cfg, "wakeword")
		if err != nil {
			return nil, err
		}
		threshold := cfgutil.Float64(cfg, "threshold", 0.05)
		a := NewWakeword(name, wakeword, &EnergyDetector{Threshold: threshold}, queue, logger)
		a.deviceIndex = cfgutil.Int(cfg, "device_index", -1)
		return a, nil
	}
}

func (w *Wakeword) Name() string                     { return w.name }
func (w *Wakeword) HandledKinds() []core.InputKind    { return []core.InputKind{core.Wakeword} }

func (w *Wakeword) Start(ctx context.Context) error {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("wakeword: init audio context: %w", err)
	}
	w.malgoCtx = malgoCtx

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(w.sampleRate)
	deviceCfg.Alsa.NoMMap = 1

	frame := make([]int16, 0, w.frameLength)
	onSamples := func(_, input []byte, _ uint32) {
		w.mu.Lock()
		paused := w.paused
		w.mu.Unlock()
		if paused || len(input) < 2 {
			return
		}
		frame = frame[:0]
		for i := 0; i+1 < len(input); i += 2 {
			frame = append(frame, int16(input[i])|int16(input[i+1])<<8)
		}
		if w.detector.Process(frame) {
			event := core.NewInputEvent(core.Wakeword, core.HIGH, "wakeword_detected",
				core.WithSource(w.name), core.WithMetadata(map[string]any{"wakeword": w.wakeword}))
			if !w.queue.Offer(event) {
				w.logger.Warn("wakeword: input queue full, dropping detection")
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceCfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		malgoCtx.Uninit()
		return fmt.Errorf("wakeword: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return fmt.Errorf("wakeword: start capture device: %w", err)
	}

	w.device = device
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	w.logger.Info("wakeword adapter started", "name", w.name, "wakeword", w.wakeword)
	return nil
}

func (w *Wakeword) Stop() error {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.device != nil {
		w.device.Uninit()
		w.device = nil
	}
	if w.malgoCtx != nil {
		w.malgoCtx.Uninit()
		w.malgoCtx = nil
	}
	w.logger.Info("wakeword adapter stopped", "name", w.name)
	return nil
}

func (w *Wakeword) HandleCommand(cmd core.AdapterCommand) bool {
	switch cmd {
	case core.WakewordListenStop:
		w.mu.Lock()
		w.paused = true
		w.mu.Unlock()
		return true
	case core.WakewordListenStart:
		w.mu.Lock()
		w.paused = false
		w.mu.Unlock()
		return true
	default:
		return false
	}
}
