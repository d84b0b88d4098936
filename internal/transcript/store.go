package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_name TEXT,
	session_id TEXT NOT NULL,
	metadata_json TEXT
)`

// Entry is one persisted transcript row: either a stretch of spoken text or
// a tool invocation record.
type Entry struct {
	Timestamp time.Time
	Content   string
	ToolName  string
	SessionID string
	Metadata  string
}

// Store is an append-only transcript log backed by sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the transcript database at path and ensures the
// schema exists. Use ":memory:" for an in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (timestamp, content, tool_name, session_id, metadata_json) VALUES (?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano),
		e.Content,
		nullable(e.ToolName),
		e.SessionID,
		nullable(e.Metadata),
	)
	if err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
