package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the dependency-light fallback Store for deployments
// without a Postgres instance available, grounded on the same
// MemoryStore shape but without vector search: SemanticMemories does
// a plain substring match instead of nearest-neighbor.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// path and migrates its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: set journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ts DATETIME DEFAULT CURRENT_TIMESTAMP,
			processed INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			fact TEXT NOT NULL,
			category TEXT NOT NULL,
			notes TEXT NOT NULL,
			importance INTEGER NOT NULL,
			ts DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("persistence: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) AddHistory(ctx context.Context, role, content string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO history (role, content) VALUES (?, ?)", role, content)
	return err
}

func (s *SQLiteStore) GetUnprocessedHistory(ctx context.Context) ([]HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, role, content, ts, processed FROM history WHERE processed = 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var processed int
		var ts time.Time
		if err := rows.Scan(&r.ID, &r.Role, &r.Content, &ts, &processed); err != nil {
			return nil, err
		}
		r.Timestamp = ts
		r.Processed = processed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, "UPDATE history SET processed = 1 WHERE id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) AddPermanentMemory(ctx context.Context, fact, category, notes string, importance int) error {
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO memories (id, fact, category, notes, importance) VALUES (?, ?, ?, ?, ?)",
		id, fact, category, notes, importance)
	return err
}

func (s *SQLiteStore) SemanticMemories(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fact FROM memories WHERE fact LIKE ? LIMIT ?", "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFactRows(rows)
}

func (s *SQLiteStore) HighPriorityMemories(ctx context.Context, threshold int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fact FROM memories WHERE importance >= ?", threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFactRows(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanFactRows(rows *sql.Rows) ([]string, error) {
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
