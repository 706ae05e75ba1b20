package output

import (
	"context"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/persistence"
)

// Persistence consumes SaveHistory/SaveMemory events and writes them
// through a persistence.Store, grounded on database_output.py's
// DatabaseOutput.
type Persistence struct {
	*base
	store persistence.Store
}

// NewPersistence builds a Persistence output adapter.
func NewPersistence(name string, queueSize int, store persistence.Store, logger core.Logger) *Persistence {
	p := &Persistence{store: store}
	p.base = newBase(name, queueSize, logger, p.handle)
	return p
}

// BuildPersistence is the factory.OutputBuilder for implementation
// "persistence".
func BuildPersistence(store persistence.Store, logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		queueSize := cfgutil.Int(cfg, "queue_maxsize", 50)
		return NewPersistence(name, queueSize, store, logger), nil
	}
}

func (p *Persistence) Name() string { return p.base.name }

func (p *Persistence) HandledKinds() []core.OutputKind {
	return []core.OutputKind{core.SaveHistory, core.SaveMemory}
}

func (p *Persistence) Start(ctx context.Context) error {
	p.startWorker()
	p.logger.Info("persistence output adapter started", "name", p.Name())
	return nil
}

func (p *Persistence) Stop() error {
	p.stopWorker()
	if err := p.store.Close(); err != nil {
		p.logger.Debug("persistence: close error", "error", err)
	}
	p.logger.Info("persistence output adapter stopped", "name", p.Name())
	return nil
}

func (p *Persistence) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (p *Persistence) handle(event core.Event) {
	switch event.OutputType {
	case core.SaveHistory:
		p.handleSaveHistory(event)
	case core.SaveMemory:
		p.handleSaveMemory(event)
	}
}

func (p *Persistence) handleSaveHistory(event core.Event) {
	// Content is either a {role, text} map or the text itself with the
	// role carried in metadata, which is how the Brain emits it.
	var role, text string
	switch data := event.Content.(type) {
	case map[string]any:
		role, _ = data["role"].(string)
		text, _ = data["text"].(string)
	case string:
		role, text = event.MetaString("role"), data
	default:
		p.logger.Warn("persistence: invalid save_history content", "content", event.Content)
		return
	}
	if role == "" || text == "" {
		p.logger.Warn("persistence: save_history missing role/text", "content", event.Content)
		return
	}
	if err := p.store.AddHistory(context.Background(), role, text); err != nil {
		p.logger.Error("persistence: save_history failed", "error", err)
		return
	}
	p.logger.Debug("history saved", "role", role)
}

func (p *Persistence) handleSaveMemory(event core.Event) {
	data, ok := event.Content.(map[string]any)
	if !ok {
		p.logger.Warn("persistence: invalid save_memory content", "content", event.Content)
		return
	}
	fact, _ := data["fact"].(string)
	category, _ := data["category"].(string)
	notes, _ := data["notes"].(string)
	importance := 3
	switch v := data["importance"].(type) {
	case int:
		importance = v
	case float64:
		importance = int(v)
	}
	if fact == "" {
		p.logger.Warn("persistence: save_memory missing fact", "data", data)
		return
	}
	if err := p.store.AddPermanentMemory(context.Background(), fact, category, notes, importance); err != nil {
		p.logger.Error("persistence: save_memory failed", "error", err)
		return
	}
	p.logger.Debug("memory saved", "fact", fact)
}
