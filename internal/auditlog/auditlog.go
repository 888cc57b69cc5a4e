// Package auditlog persists a best-effort operational record of every
// generation attempt, supplementing (never replacing) the version store's
// commit history.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Log wraps the sqlite-backed generation ledger.
type Log struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path, migrating it in
// place.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	l := &Log{db: db}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		PRAGMA journal_mode=WAL;
		CREATE TABLE IF NOT EXISTS generations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			sandbox_name TEXT NOT NULL,
			warm INTEGER NOT NULL,
			kind TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			forwarded_events INTEGER NOT NULL,
			commit_hash TEXT
		);
	`)
	return err
}

// Record is one generation attempt to persist.
type Record struct {
	UserID          string
	ProjectID       string
	SandboxName     string
	Warm            bool
	Kind            string
	StartedAt       time.Time
	FinishedAt      time.Time
	ExitCode        int
	ForwardedEvents int
	CommitHash      string
}

// Append inserts one generation record. Failures here are logged by the
// caller and never surfaced to the client or allowed to fail a
// generation.
func (l *Log) Append(ctx context.Context, r Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO generations
			(user_id, project_id, sandbox_name, warm, kind, started_at, finished_at, exit_code, forwarded_events, commit_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.ProjectID, r.SandboxName, boolToInt(r.Warm), r.Kind,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.ExitCode, r.ForwardedEvents, nullableString(r.CommitHash),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
