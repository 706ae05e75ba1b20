package output

import (
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

var pipeOutputKindNames = map[core.OutputKind]string{
	core.Speak:         "speak",
	core.LedControl:    "led_control",
	core.SaveHistory:   "save_history",
	core.SaveMemory:    "save_memory",
	core.DistillMemory: "distill_memory",
	core.LightOnOutput: "light_on",
	core.LightOffOutput: "light_off",
}

// PipeOut writes every OutputKind event matching its configured filter
// to a named pipe as newline-delimited JSON, for external monitoring,
// grounded on pipe_output.py's PipeOutputAdapter. Writes are
// non-blocking: with no reader attached, events are silently dropped.
type PipeOut struct {
	*base
	pipePath string
	filter   map[core.OutputKind]bool

	mu   sync.Mutex
	file *os.File
}

type pipeOutMessage struct {
	Type      string         `json:"type"`
	Content   any            `json:"content"`
	Timestamp float64        `json:"timestamp"`
	Priority  string         `json:"priority"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewPipeOut builds a PipeOut adapter. An empty filter means every
// OutputKind is written.
func NewPipeOut(name string, queueSize int, pipePath string, filter map[core.OutputKind]bool, logger core.Logger) *PipeOut {
	p := &PipeOut{pipePath: pipePath, filter: filter}
	p.base = newBase(name, queueSize, logger, p.handle)
	return p
}

// BuildPipeOut is the factory.OutputBuilder for implementation "pipeout".
// event_types is required, matching the original's fail-fast KeyError.
func BuildPipeOut(logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		path := cfgutil.String(cfg, "pipe_path", "data/buddy.out")
		rawTypes := cfgutil.StringSlice(cfg, "event_types")
		if _, ok := cfg["event_types"]; !ok {
			return nil, fmt.Errorf("pipeout: missing required config key 'event_types'")
		}

		filter := map[core.OutputKind]bool{}
		for _, name := range rawTypes {
			found := false
			for kind, kindName := range pipeOutputKindNames {
				if kindName == strings.ToLower(name) {
					filter[kind] = true
					found = true
					break
				}
			}
			if !found {
				logger.Warn("pipeout: unknown event type in filter", "type", name)
			}
		}

		queueSize := cfgutil.Int(cfg, "queue_maxsize", 50)
		return NewPipeOut(name, queueSize, path, filter, logger), nil
	}
}

func (p *PipeOut) Name() string { return p.base.name }

func (p *PipeOut) HandledKinds() []core.OutputKind {
	if len(p.filter) == 0 {
		kinds := make([]core.OutputKind, 0, len(pipeOutputKindNames))
		for k := range pipeOutputKindNames {
			kinds = append(kinds, k)
		}
		return kinds
	}
	kinds := make([]core.OutputKind, 0, len(p.filter))
	for k := range p.filter {
		kinds = append(kinds, k)
	}
	return kinds
}

func (p *PipeOut) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.pipePath), 0o755); err != nil {
		return fmt.Errorf("pipeout: create pipe dir: %w", err)
	}
	if info, err := os.Stat(p.pipePath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("pipeout: stat pipe: %w", err)
		}
		if err := syscall.Mkfifo(p.pipePath, 0o644); err != nil {
			return fmt.Errorf("pipeout: mkfifo: %w", err)
		}
	} else if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("pipeout: %s exists but is not a named pipe", p.pipePath)
	}

	p.startWorker()
	p.logger.Info("pipeout adapter started", "name", p.Name(), "path", p.pipePath)
	return nil
}

func (p *PipeOut) Stop() error {
	p.stopWorker()
	p.mu.Lock()
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
	p.mu.Unlock()
	p.logger.Info("pipeout adapter stopped", "name", p.Name())
	return nil
}

func (p *PipeOut) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (p *PipeOut) handle(event core.Event) {
	if len(p.filter) > 0 && !p.filter[event.OutputType] {
		return
	}

	typeName, ok := pipeOutputKindNames[event.OutputType]
	if !ok {
		typeName = string(event.OutputType)
	}

	msg := pipeOutMessage{
		Type:      typeName,
		Content:   event.Content,
		Timestamp: float64(event.Timestamp.UnixNano()) / 1e9,
		Priority:  event.Priority.String(),
		Source:    event.Source,
		Metadata:  event.Metadata,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("pipeout: marshal failed", "error", err)
		return
	}
	data = append(data, '\n')

	if err := p.write(data); err != nil {
		p.logger.Debug("pipeout: no reader attached, dropping event", "error", err)
	}
}

func (p *PipeOut) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		f, err := os.OpenFile(p.pipePath, os.O_WRONLY|os.O_NONBLOCK, 0)
		if err != nil {
			return err
		}
		p.file = f
	}

	if _, err := p.file.Write(data); err != nil {
		p.file.Close()
		p.file = nil
		return err
	}
	return nil
}
