// Package persistence implements the two memory tiers Buddy needs:
// a short-lived conversation history and a permanent, semantically
// searchable fact store, grounded on
// original_source/infrastructure/memory_store.py's MemoryStore
// (SQLite for history, a vector store for facts).
package persistence

import (
	"context"
	"time"
)

// HistoryRow is one turn of raw conversation history awaiting
// distillation into permanent memory.
type HistoryRow struct {
	ID        int64
	Role      string
	Content   string
	Timestamp time.Time
	Processed bool
}

// Fact is a distilled, permanently stored memory.
type Fact struct {
	ID         string
	Text       string
	Category   string
	Notes      string
	Importance int
	Timestamp  time.Time
}

// Embedder turns a fact or query into a vector for semantic search.
// Supplying nil to a Store constructor falls back to substring
// matching, documented in DESIGN.md: no embedding provider exists
// anywhere in the corpus this module was grounded on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the narrow persistence surface the output adapters need.
// AddHistory/AddPermanentMemory back the persistence output adapter;
// GetUnprocessedHistory/MarkProcessed back the archivist distiller.
// SemanticMemories/HighPriorityMemories are not called by any adapter.
type Store interface {
	AddHistory(ctx context.Context, role, content string) error
	GetUnprocessedHistory(ctx context.Context) ([]HistoryRow, error)
	MarkProcessed(ctx context.Context, ids []int64) error

	AddPermanentMemory(ctx context.Context, fact, category, notes string, importance int) error
	SemanticMemories(ctx context.Context, query string, limit int) ([]string, error)
	HighPriorityMemories(ctx context.Context, threshold int) ([]string, error)

	Close() error
}
