// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema creation and shared scan/format helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids busy
	// errors under concurrent transactions.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'client',
			created_at    TEXT NOT NULL,

			CHECK (role IN ('client', 'admin'))
		);

		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			id            TEXT PRIMARY KEY,
			owner_user_id TEXT NOT NULL REFERENCES users(id),
			visitor_name  TEXT NOT NULL,
			visitor_email TEXT,
			status        TEXT NOT NULL DEFAULT 'active',
			assigned_to   TEXT REFERENCES users(id),
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (status IN ('active', 'human_handoff', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_owner_created
			ON chat_sessions(owner_user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON chat_sessions(status);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id                TEXT PRIMARY KEY,
			session_id        TEXT NOT NULL REFERENCES chat_sessions(id),
			sender_type       TEXT NOT NULL,
			sender_id         TEXT REFERENCES users(id),
			body              TEXT NOT NULL,
			is_ai             INTEGER NOT NULL DEFAULT 0,
			is_handoff_marker INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,

			CHECK (sender_type IN ('visitor', 'ai', 'human'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON chat_messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS leads (
			id            TEXT PRIMARY KEY,
			session_id    TEXT REFERENCES chat_sessions(id),
			owner_user_id TEXT REFERENCES users(id),
			name          TEXT NOT NULL,
			email         TEXT NOT NULL,
			phone         TEXT,
			company       TEXT,
			message       TEXT,
			source        TEXT NOT NULL DEFAULT 'chatbot',
			status        TEXT NOT NULL DEFAULT 'new',
			created_at    TEXT NOT NULL,

			CHECK (status IN ('new', 'contacted', 'qualified', 'converted', 'lost'))
		);

		CREATE INDEX IF NOT EXISTS idx_leads_owner ON leads(owner_user_id);
		CREATE INDEX IF NOT EXISTS idx_leads_session ON leads(session_id);
		CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);

		CREATE TABLE IF NOT EXISTS agent_settings (
			owner_user_id TEXT NOT NULL REFERENCES users(id),
			setting_key   TEXT NOT NULL,
			setting_value TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			PRIMARY KEY (owner_user_id, setting_key)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// formatTime renders a timestamp in the canonical column format. Second
// precision; queries that need a stable order within a second additionally
// sort on rowid, which follows insertion order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a timestamp column.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullString returns nil for empty strings, otherwise the string value
func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// fromNullString converts a sql.NullString into an optional string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// inTx runs fn inside a transaction, committing on nil error.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
