package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// embeddingDim is the vector width stored in the memories table. 384
// matches common small sentence-embedding models; with no Embedder
// configured, PGStore stores a zero vector of this width and falls
// back to a substring search for SemanticMemories.
const embeddingDim = 384

// PGStore is the primary Store implementation: history in a plain
// table, facts in a pgvector-indexed table for nearest-neighbor
// semantic recall, mirroring MemoryStore's SQLite+vector-DB split but
// unified behind a single Postgres connection.
type PGStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPGStore connects to dsn, registers the pgvector type on every
// pooled connection, and creates the schema if it doesn't exist.
// embedder may be nil.
func NewPGStore(ctx context.Context, dsn string, embedder Embedder) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}

	s := &PGStore{pool: pool, embedder: embedder}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS history (
			id BIGSERIAL PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed BOOLEAN NOT NULL DEFAULT false
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			fact TEXT NOT NULL,
			category TEXT NOT NULL,
			notes TEXT NOT NULL,
			importance INT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(%d)
		)`, embeddingDim),
		"CREATE INDEX IF NOT EXISTS memories_embedding_idx ON memories USING ivfflat (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("persistence: migrate: %w", err)
		}
	}
	return nil
}

func (s *PGStore) AddHistory(ctx context.Context, role, content string) error {
	_, err := s.pool.Exec(ctx, "INSERT INTO history (role, content) VALUES ($1, $2)", role, content)
	return err
}

func (s *PGStore) GetUnprocessedHistory(ctx context.Context) ([]HistoryRow, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, role, content, ts, processed FROM history WHERE processed = false ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		if err := rows.Scan(&r.ID, &r.Role, &r.Content, &r.Timestamp, &r.Processed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "UPDATE history SET processed = true WHERE id = ANY($1)", ids)
	return err
}

func (s *PGStore) AddPermanentMemory(ctx context.Context, fact, category, notes string, importance int) error {
	vec, err := s.embed(ctx, fact)
	if err != nil {
		return fmt.Errorf("persistence: embed fact: %w", err)
	}
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err = s.pool.Exec(ctx,
		"INSERT INTO memories (id, fact, category, notes, importance, embedding) VALUES ($1, $2, $3, $4, $5, $6)",
		id, fact, category, notes, importance, pgvector.NewVector(vec))
	return err
}

func (s *PGStore) SemanticMemories(ctx context.Context, query string, limit int) ([]string, error) {
	if s.embedder == nil {
		rows, err := s.pool.Query(ctx, "SELECT fact FROM memories WHERE fact ILIKE $1 LIMIT $2", "%"+query+"%", limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanFacts(rows)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: embed query: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		"SELECT fact FROM memories ORDER BY embedding <=> $1 LIMIT $2", pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *PGStore) HighPriorityMemories(ctx context.Context, threshold int) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT fact FROM memories WHERE importance >= $1", threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return make([]float32, embeddingDim), nil
	}
	return s.embedder.Embed(ctx, text)
}

func scanFacts(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, err
		}
		out = append(out, fact)
	}
	return out, rows.Err()
}
