// Command buddy is the orchestrator entrypoint: it loads configuration,
// wires every provider/adapter/core service together, and runs the
// main dequeue loop, grounded on original_source/core/orchestrator.py
// and teacher's cmd/agent/main.go (env-driven provider selection,
// signal handling, defer-based cleanup).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	inputadapters "github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/input"
	outputadapters "github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/output"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/audio"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/brain"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/config"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/persistence"
	llmprovider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/llm"
	sttprovider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/stt"
	ttsprovider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/tts"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/router"

	"github.com/lokutor-ai/lokutor-orchestrator/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	logger, err := telemetry.NewZapLogger(os.Getenv("BUDDY_ENV") == "development")
	if err != nil {
		log.Fatalf("buddy: init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("buddy: loading config failed", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), "buddy-orchestrator", 1.0)
	if err != nil {
		logger.Warn("buddy: tracing init failed, continuing without it", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	state := core.NewGlobalState()
	inputQueue := core.NewPriorityQueue(cfg.Queues.InputMaxSize)
	interruptQueue := core.NewPriorityQueue(cfg.Queues.InterruptMaxSize)
	coordinator := audio.NewCoordinator("buddy-duplex")

	stt := buildSTT(logger)
	llm := buildLLM(logger, cfg.Brain.ModelID)
	tts := buildTTS(logger)
	store := buildStore(logger)
	defer store.Close()

	b, err := brain.New(llm, state, logger, brain.Config{
		ModelID:           cfg.Brain.ModelID,
		SystemInstruction: cfg.Brain.SystemInstruction,
		Temperature:       cfg.Brain.Temperature,
		ArchivistInterval: cfg.ArchivistInterval(),
		LightOffTimeout:   cfg.LightOffTimeout(),
		ProactiveLighting: cfg.Brain.ProactiveLighting,
	})
	if err != nil {
		logger.Error("buddy: brain init failed", "error", err)
		os.Exit(1)
	}

	factory := adapter.NewFactory()
	factory.RegisterInput("wakeword", inputadapters.BuildWakeword(inputQueue, logger))
	factory.RegisterInput("speechin", inputadapters.BuildSpeechIn(stt, coordinator, inputQueue, state, logger))
	factory.RegisterInput("radar", inputadapters.BuildRadar(inputQueue, logger))
	factory.RegisterInput("temperature", inputadapters.BuildTemperature(inputQueue, logger))
	factory.RegisterInput("scheduler", inputadapters.BuildScheduler(state, inputQueue, logger))
	factory.RegisterInput("pipein", inputadapters.BuildPipeIn(inputQueue, logger))

	gpioChip := os.Getenv("BUDDY_GPIO_CHIP")
	factory.RegisterOutput("tts", outputadapters.BuildTTS(tts, coordinator, state, logger))
	factory.RegisterOutput("led", outputadapters.BuildLED(gpioChip, logger))
	factory.RegisterOutput("persistence", outputadapters.BuildPersistence(store, logger))
	factory.RegisterOutput("distiller", outputadapters.BuildDistiller(llm, store, logger))
	factory.RegisterOutput("bulb", outputadapters.BuildBulb(logger))
	factory.RegisterOutput("pipeout", outputadapters.BuildPipeOut(logger))

	manager := adapter.NewManager(logger, inputQueue, interruptQueue)

	inputSpecs := toSpecs(cfg.Adapters.Input)
	outputSpecs := toSpecs(cfg.Adapters.Output)
	if err := factory.BuildAll(manager, inputSpecs, outputSpecs, logger); err != nil {
		logger.Error("buddy: building adapters failed", "error", err)
		os.Exit(1)
	}

	rt := router.New(logger)
	for _, oa := range manager.OutputAdapters() {
		for _, kind := range oa.HandledKinds() {
			rt.Register(kind, oa)
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	observer := telemetry.NewRouterObserver(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		logger.Error("buddy: starting adapters failed", "error", err)
		os.Exit(1)
	}

	var running atomic.Bool
	running.Store(true)
	var restartRequested atomic.Bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("buddy: shutdown signal received", "signal", sig.String())
		running.Store(false)
		cancel()
	}()

	logger.Info("buddy orchestrator started", "model", cfg.Brain.ModelID)
	runLoop(ctx, &running, &restartRequested, inputQueue, manager, b, rt, observer, logger)

	logger.Info("buddy: stopping adapters")
	if err := manager.Stop(); err != nil {
		logger.Error("buddy: error stopping adapters", "error", err)
	}

	if restartRequested.Load() {
		logger.Info("buddy: restart requested, re-executing process")
		exe, err := os.Executable()
		if err != nil {
			logger.Error("buddy: could not resolve own executable for restart", "error", err)
			return
		}
		if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
			logger.Error("buddy: restart re-exec failed", "error", err)
		}
	}
}

// runLoop is spec §4.3's dequeue loop: dequeue with a 1s timeout, run
// the Brain's timers alone on timeout, otherwise let the AdapterManager
// derive its own commands before handing the event to the Brain, route
// whatever outputs come back, and broadcast whatever commands come
// back. Shutdown/Restart short-circuit the loop after their farewell
// line has a chance to play out.
func runLoop(
	ctx context.Context,
	running *atomic.Bool,
	restartRequested *atomic.Bool,
	inputQueue *core.PriorityQueue,
	manager *adapter.Manager,
	b *brain.Brain,
	rt *router.Router,
	observer *telemetry.RouterObserver,
	logger core.Logger,
) {
	for running.Load() {
		getCtx, getCancel := context.WithTimeout(ctx, time.Second)
		event, ok := inputQueue.Get(getCtx)
		getCancel()

		if !ok {
			if ctx.Err() != nil {
				return
			}
			rt.RouteBatch(b.Tick())
			observer.Observe(rt.Stats())
			continue
		}

		if event.InputType == core.Shutdown || event.InputType == core.Restart {
			outputs, commands := b.Process(event)
			rt.RouteBatch(outputs)
			for _, cmd := range commands {
				manager.Broadcast(cmd)
			}
			if event.InputType == core.Restart {
				restartRequested.Store(true)
			}
			waitForFarewell(manager)
			running.Store(false)
			return
		}

		manager.Handle(event)
		outputs, commands := b.Process(event)
		rt.RouteBatch(outputs)
		for _, cmd := range commands {
			manager.Broadcast(cmd)
		}
		observer.Observe(rt.Stats())
	}
}

// waitForFarewell pauses for a fixed 3 seconds so a Shutdown/Restart
// farewell line can play before the process tears adapters down. It
// does not observe the tts adapter: the full pause elapses even when
// nothing is speaking, and a longer line is cut off at the deadline.
func waitForFarewell(manager *adapter.Manager) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	_ = manager
}

func toSpecs(entries []config.AdapterEntry) []adapter.AdapterSpec {
	specs := make([]adapter.AdapterSpec, 0, len(entries))
	for _, e := range entries {
		// The config's "class" names a registered implementation
		// directly (config_loader.py's newer list-of-{class,config}
		// shape merges what used to be separate type/implementation
		// keys into one), so the same string serves as both the
		// factory's adapterType (used only for error messages/naming)
		// and its implementation key.
		specs = append(specs, adapter.AdapterSpec{Type: e.Class, Implementation: e.Class, Config: e.Config})
	}
	return specs
}

// buildSTT selects an STTProvider by STT_PROVIDER (default "groq"),
// mirroring cmd/agent/main.go's provider-selection switch.
func buildSTT(logger core.Logger) orchestrator.STTProvider {
	name := envDefault("STT_PROVIDER", "groq")
	switch name {
	case "openai":
		key := requireEnv(logger, "OPENAI_API_KEY")
		return sttprovider.NewOpenAISTT(key, "whisper-1")
	case "deepgram":
		key := requireEnv(logger, "DEEPGRAM_API_KEY")
		return sttprovider.NewDeepgramSTT(key)
	case "assemblyai":
		key := requireEnv(logger, "ASSEMBLYAI_API_KEY")
		return sttprovider.NewAssemblyAISTT(key)
	case "groq":
		fallthrough
	default:
		key := requireEnv(logger, "GROQ_API_KEY")
		model := envDefault("GROQ_STT_MODEL", "whisper-large-v3-turbo")
		return sttprovider.NewGroqSTT(key, model)
	}
}

// buildLLM selects an LLMProvider by LLM_PROVIDER (default "groq"),
// using brain.model_id as the model string passed to whichever
// provider wins: the config names one model id regardless of which
// backend serves it.
func buildLLM(logger core.Logger, modelID string) orchestrator.LLMProvider {
	name := envDefault("LLM_PROVIDER", "groq")
	switch name {
	case "openai":
		key := requireEnv(logger, "OPENAI_API_KEY")
		return llmprovider.NewOpenAILLM(key, modelID)
	case "anthropic":
		key := requireEnv(logger, "ANTHROPIC_API_KEY")
		return llmprovider.NewAnthropicLLM(key, modelID)
	case "google":
		key := requireEnv(logger, "GOOGLE_API_KEY")
		return llmprovider.NewGoogleLLM(key, modelID)
	case "groq":
		fallthrough
	default:
		key := requireEnv(logger, "GROQ_API_KEY")
		return llmprovider.NewGroqLLM(key, modelID)
	}
}

// buildTTS always wires the teacher's Lokutor websocket streaming
// synthesizer: it's the only TTSProvider in the pack, and spec §4.7's
// "speak" output needs nothing more than streaming synth + abort.
func buildTTS(logger core.Logger) orchestrator.TTSProvider {
	key := requireEnv(logger, "LOKUTOR_API_KEY")
	return ttsprovider.NewLokutorTTS(key)
}

// buildStore wires Postgres (DATABASE_URL) when configured, falling
// back to the dependency-light SQLite store otherwise, matching the
// original's SQLite-primary/Chroma-optional persistence split.
func buildStore(logger core.Logger) persistence.Store {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := persistence.NewPGStore(context.Background(), dsn, nil)
		if err != nil {
			logger.Error("buddy: postgres store init failed, falling back to sqlite", "error", err)
		} else {
			return store
		}
	}

	path := envDefault("BUDDY_SQLITE_PATH", "data/buddy.db")
	store, err := persistence.NewSQLiteStore(path)
	if err != nil {
		logger.Error("buddy: sqlite store init failed", "error", err)
		os.Exit(1)
	}
	return store
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(logger core.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Error(fmt.Sprintf("buddy: %s must be set", key))
		os.Exit(1)
	}
	return v
}
