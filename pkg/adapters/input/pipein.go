package input

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
)

var inputKindsByName = map[string]core.InputKind{
	"user_speech":        core.UserSpeech,
	"wakeword":           core.Wakeword,
	"conversation_end":   core.ConversationEnd,
	"interrupt":          core.Interrupt,
	"sensor_presence":    core.SensorPresence,
	"sensor_movement":    core.SensorMovement,
	"sensor_temperature": core.SensorTemperature,
	"direct_output":      core.DirectOutput,
	"trigger_archivist":  core.TriggerArchivist,
	"chat_session_reset": core.ChatSessionReset,
	"light_on":           core.LightOnInput,
	"light_off":          core.LightOffInput,
	"shutdown":           core.Shutdown,
	"restart":            core.Restart,
}

var outputKindsByName = map[string]core.OutputKind{
	"speak":          core.Speak,
	"led_control":    core.LedControl,
	"save_history":   core.SaveHistory,
	"save_memory":    core.SaveMemory,
	"distill_memory": core.DistillMemory,
	"light_on":       core.LightOnOutput,
	"light_off":      core.LightOffOutput,
}

// PipeIn reads newline-delimited JSON commands from a named pipe,
// giving any external process a way to inject events or directly
// inject output events, mirroring pipe_input.py's PipeInputAdapter.
type PipeIn struct {
	name     string
	pipePath string

	queue  *core.PriorityQueue
	logger core.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type pipeLine struct {
	Type     string         `json:"type"`
	Content  json.RawMessage `json:"content"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

type directOutputContent struct {
	EventType string          `json:"event_type"`
	Content   json.RawMessage `json:"content"`
	Priority  string          `json:"priority"`
}

// NewPipeIn builds a PipeIn adapter.
func NewPipeIn(name, pipePath string, queue *core.PriorityQueue, logger core.Logger) *PipeIn {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &PipeIn{name: name, pipePath: pipePath, queue: queue, logger: logger}
}

// BuildPipeIn is the factory.InputBuilder for implementation "pipein".
func BuildPipeIn(queue *core.PriorityQueue, logger core.Logger) adapter.InputBuilder {
	return func(name string, cfg map[string]any) (adapter.InputAdapter, error) {
		path := cfgutil.String(cfg, "pipe_path", "data/buddy.in")
		return NewPipeIn(name, path, queue, logger), nil
	}
}

func (p *PipeIn) Name() string { return p.name }

func (p *PipeIn) HandledKinds() []core.InputKind {
	kinds := make([]core.InputKind, 0, len(inputKindsByName))
	for _, k := range inputKindsByName {
		kinds = append(kinds, k)
	}
	return kinds
}

func (p *PipeIn) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.pipePath), 0o755); err != nil {
		return fmt.Errorf("pipein: create pipe dir: %w", err)
	}

	if info, err := os.Stat(p.pipePath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("pipein: stat pipe: %w", err)
		}
		if err := syscall.Mkfifo(p.pipePath, 0o644); err != nil {
			return fmt.Errorf("pipein: mkfifo: %w", err)
		}
	} else if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("pipein: %s exists but is not a named pipe", p.pipePath)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	go p.readLoop(runCtx)
	p.logger.Info("pipein adapter started", "name", p.name, "path", p.pipePath)
	return nil
}

func (p *PipeIn) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	// A blocking FIFO open won't notice the cancellation on its own;
	// opening the pipe for write unblocks the reader's open(2) call.
	if f, err := os.OpenFile(p.pipePath, os.O_WRONLY|os.O_NONBLOCK, 0); err == nil {
		f.Write([]byte("\n"))
		f.Close()
	}

	if p.done != nil {
		<-p.done
	}
	p.logger.Info("pipein adapter stopped", "name", p.name)
	return nil
}

func (p *PipeIn) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (p *PipeIn) readLoop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := os.Open(p.pipePath)
		if err != nil {
			p.logger.Error("pipein: open pipe failed", "error", err)
			return
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				f.Close()
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := p.processLine(line); err != nil {
				p.logger.Error("pipein: error processing line", "error", err)
			}
		}
		f.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (p *PipeIn) processLine(line string) error {
	var msg pipeLine
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}

	priorityName := strings.ToUpper(msg.Priority)
	if priorityName == "" {
		priorityName = "NORMAL"
	}
	priority, ok := core.ParsePriority(priorityName)
	if !ok {
		p.logger.Warn("pipein: unknown priority, using NORMAL", "priority", msg.Priority)
		priority = core.NORMAL
	}

	if msg.Type == "direct_output" {
		outputEvent, err := p.parseDirectOutput(msg.Content, priority)
		if err != nil {
			return err
		}
		event := core.NewInputEvent(core.DirectOutput, priority, outputEvent,
			core.WithSource(p.name), core.WithMetadata(msg.Metadata))
		if !p.queue.Offer(event) {
			p.logger.Warn("pipein: input queue full, dropped direct_output")
		}
		return nil
	}

	kind, ok := inputKindsByName[strings.ToLower(msg.Type)]
	if !ok {
		return fmt.Errorf("unknown event type %q", msg.Type)
	}

	var content any
	if len(msg.Content) > 0 {
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return fmt.Errorf("malformed content: %w", err)
		}
	}

	event := core.NewInputEvent(kind, priority, content, core.WithSource(p.name), core.WithMetadata(msg.Metadata))
	if !p.queue.Offer(event) {
		p.logger.Warn("pipein: input queue full, dropped event", "type", msg.Type)
	}
	return nil
}

func (p *PipeIn) parseDirectOutput(raw json.RawMessage, fallbackPriority core.Priority) (core.Event, error) {
	var content directOutputContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return core.Event{}, fmt.Errorf("direct_output content must be an object: %w", err)
	}
	if content.EventType == "" {
		return core.Event{}, fmt.Errorf("direct_output content missing required 'event_type' field")
	}

	kind, ok := outputKindsByName[strings.ToLower(content.EventType)]
	if !ok {
		return core.Event{}, fmt.Errorf("unknown output event_type %q", content.EventType)
	}

	priority := fallbackPriority
	if content.Priority != "" {
		if parsed, ok := core.ParsePriority(strings.ToUpper(content.Priority)); ok {
			priority = parsed
		}
	}

	var payload any
	if len(content.Content) > 0 {
		if err := json.Unmarshal(content.Content, &payload); err != nil {
			return core.Event{}, fmt.Errorf("malformed direct_output inner content: %w", err)
		}
	}

	return core.NewOutputEvent(kind, priority, payload), nil
}
