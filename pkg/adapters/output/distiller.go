package output

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapter"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/adapters/cfgutil"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/core"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/persistence"
)

// distilledFact is one entry of the JSON array the distillation LLM
// call returns, field names matching the original's Italian JSON
// contract (fatto/categoria/importanza) since that's the shape the
// system prompt below asks the model to produce.
type distilledFact struct {
	Fatto      string `json:"fatto"`
	Categoria  string `json:"categoria"`
	Importanza int    `json:"importanza"`
}

const defaultDistillInstruction = `Analizza la conversazione fornita ed estrai i fatti permanenti degni di nota su Buddy o sull'utente.
Rispondi SOLO con un array JSON di oggetti {"fatto": string, "categoria": string, "importanza": 1-5}. Se non c'è nulla da ricordare, rispondi con [].`

// Distiller consumes DistillMemory events and turns the accumulated,
// unprocessed conversation history into permanent facts via an LLM,
// grounded on archivist_output.py and core/archivist.py's
// BuddyArchivist.distill_and_save.
type Distiller struct {
	*base
	llm         orchestrator.LLMProvider
	store       persistence.Store
	instruction string
	temperature float64
}

// NewDistiller builds a Distiller output adapter.
func NewDistiller(name string, queueSize int, llm orchestrator.LLMProvider, store persistence.Store, instruction string, logger core.Logger) *Distiller {
	d := &Distiller{llm: llm, store: store, instruction: instruction}
	d.base = newBase(name, queueSize, logger, d.handle)
	return d
}

// BuildDistiller is the factory.OutputBuilder for implementation
// "distiller".
func BuildDistiller(llm orchestrator.LLMProvider, store persistence.Store, logger core.Logger) adapter.OutputBuilder {
	return func(name string, cfg map[string]any) (adapter.OutputAdapter, error) {
		queueSize := cfgutil.Int(cfg, "queue_maxsize", 10)
		instruction := cfgutil.String(cfg, "system_instruction", defaultDistillInstruction)
		return NewDistiller(name, queueSize, llm, store, instruction, logger), nil
	}
}

func (d *Distiller) Name() string { return d.base.name }

func (d *Distiller) HandledKinds() []core.OutputKind { return []core.OutputKind{core.DistillMemory} }

func (d *Distiller) Start(ctx context.Context) error {
	d.startWorker()
	d.logger.Info("distiller output adapter started", "name", d.Name())
	return nil
}

func (d *Distiller) Stop() error {
	d.stopWorker()
	d.logger.Info("distiller output adapter stopped", "name", d.Name())
	return nil
}

func (d *Distiller) HandleCommand(cmd core.AdapterCommand) bool {
	return false
}

func (d *Distiller) handle(event core.Event) {
	if event.OutputType != core.DistillMemory {
		return
	}
	if err := d.distillAndSave(context.Background()); err != nil {
		d.logger.Error("distiller: distillation failed", "error", err)
	}
}

func (d *Distiller) distillAndSave(ctx context.Context) error {
	logs, err := d.store.GetUnprocessedHistory(ctx)
	if err != nil {
		return fmt.Errorf("fetch unprocessed history: %w", err)
	}
	if len(logs) == 0 {
		d.logger.Info("distiller: no unprocessed history to distill")
		return nil
	}

	var sb strings.Builder
	ids := make([]int64, 0, len(logs))
	for _, row := range logs {
		fmt.Fprintf(&sb, "%s: %s\n", row.Role, row.Content)
		ids = append(ids, row.ID)
	}

	messages := []orchestrator.Message{
		{Role: "system", Content: d.instruction},
		{Role: "user", Content: "Analizza questa conversazione:\n" + sb.String()},
	}

	response, err := d.llm.Complete(ctx, messages)
	if err != nil {
		return fmt.Errorf("llm completion: %w", err)
	}
	if response == "" {
		return fmt.Errorf("empty response from llm")
	}

	var facts []distilledFact
	if err := json.Unmarshal([]byte(extractJSONArray(response)), &facts); err != nil {
		return fmt.Errorf("parse distilled facts: %w", err)
	}

	saved := 0
	for _, f := range facts {
		if f.Fatto == "" {
			d.logger.Warn("distiller: fact without 'fatto', skipping", "fact", f)
			continue
		}
		category := f.Categoria
		if category == "" {
			category = "generale"
		}
		importance := f.Importanza
		if importance == 0 {
			importance = 1
		}
		if err := d.store.AddPermanentMemory(ctx, f.Fatto, category, "", importance); err != nil {
			d.logger.Error("distiller: save memory failed", "error", err)
			continue
		}
		saved++
	}

	if err := d.store.MarkProcessed(ctx, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	d.logger.Info("distillation completed", "facts_saved", saved, "logs_processed", len(logs))
	return nil
}

// extractJSONArray trims any prose the model wrapped the array in,
// keeping only the outermost [...] span.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
