// Package storage persists workflows, executions, events, pipelines and
// pipeline executions in SQLite. All access goes through Store, which owns
// the connection pool; callers never see database/sql types.
//
// Timestamps are written in the space-separated SQLite form
// ("2006-01-02 15:04:05") and read back in either that form or RFC 3339.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// schema is applied on Open. Statements are idempotent so re-opening an
// existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	prompt         TEXT NOT NULL DEFAULT '',
	code           TEXT NOT NULL DEFAULT '',
	config         TEXT NOT NULL DEFAULT '{}',
	input_schema   TEXT NOT NULL DEFAULT '',
	output_schema  TEXT NOT NULL DEFAULT '',
	owner_address  TEXT NOT NULL DEFAULT '',
	price_usdc     INTEGER NOT NULL DEFAULT 0,
	deploy_status  TEXT NOT NULL DEFAULT 'draft',
	published      INTEGER NOT NULL DEFAULT 0,
	category       TEXT NOT NULL DEFAULT '',
	template_id    INTEGER NOT NULL DEFAULT 0,
	fallback       INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflows_published  ON workflows(published);
CREATE INDEX IF NOT EXISTS idx_workflows_category   ON workflows(category);
CREATE INDEX IF NOT EXISTS idx_workflows_owner      ON workflows(owner_address);
CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at);

CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	input       TEXT NOT NULL DEFAULT '',
	output      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow   ON executions(workflow_id);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type       ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

CREATE TABLE IF NOT EXISTS pipelines (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	owner_address   TEXT NOT NULL DEFAULT '',
	steps           TEXT NOT NULL DEFAULT '[]',
	active          INTEGER NOT NULL DEFAULT 1,
	execution_count INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipelines_owner      ON pipelines(owner_address);
CREATE INDEX IF NOT EXISTS idx_pipelines_active     ON pipelines(active);
CREATE INDEX IF NOT EXISTS idx_pipelines_created_at ON pipelines(created_at);

CREATE TABLE IF NOT EXISTS pipeline_executions (
	id            TEXT PRIMARY KEY,
	pipeline_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	step_results  TEXT NOT NULL DEFAULT '[]',
	trigger_input TEXT NOT NULL DEFAULT '{}',
	final_output  TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_executions_pipeline   ON pipeline_executions(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_executions_status     ON pipeline_executions(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_executions_created_at ON pipeline_executions(created_at);
`

// Store provides typed access to the five tables. It is safe for concurrent
// use; SQLite serializes writers, which is the single-writer-per-row
// guarantee the executors rely on.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for throwaway stores in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// In-memory databases exist per connection, so the pool must not grow
	// beyond one. On-disk WAL databases handle a modest pool fine.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "storage"),
	}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
