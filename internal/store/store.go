// Package store provides the durable local cache for boards, stacks,
// cards, labels, users and their relations.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode for
// concurrent readers during writes. Every synced table carries the
// local_id / remote_id / account_id / status / last_modified_local
// columns described in internal/model; join tables carry the pair of
// local foreign keys plus their own pending-change status.
//
// All writes are atomic per row and publish a change event to the
// notifier hub after commit, so live queries observe every mutation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/deckhand/deckhand/internal/notify"
)

// Store wraps the SQLite connection and the change-notifier hub.
type Store struct {
	conn *sql.DB
	hub  *notify.Hub
	path string
}

// ConstraintError reports a local write rejected for violating a
// uniqueness or foreign-key invariant. It is surfaced to the immediate
// caller of the mutation and never aborts a sync pass on its own.
type ConstraintError struct {
	Table  string
	Detail string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %s", e.Table, e.Detail)
}

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = sql.ErrNoRows

// Open creates or opens the database at path and initializes the schema.
// If hub is nil, mutations are not published.
//
// The caller MUST call Close() when done.
func Open(path string, hub *notify.Hub) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, hub: hub, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Hub exposes the change-notifier hub so callers can register live
// queries against this store.
func (s *Store) Hub() *notify.Hub {
	return s.hub
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates all tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		user_name TEXT NOT NULL,
		url TEXT NOT NULL,
		last_sync INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS boards (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'up_to_date',
		last_modified_local INTEGER NOT NULL DEFAULT 0,
		UNIQUE (account_id, remote_id)
	);

	CREATE TABLE IF NOT EXISTS stacks (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		board_local_id INTEGER NOT NULL REFERENCES boards(local_id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'up_to_date',
		last_modified_local INTEGER NOT NULL DEFAULT 0,
		UNIQUE (account_id, remote_id)
	);

	CREATE TABLE IF NOT EXISTS cards (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		stack_local_id INTEGER NOT NULL REFERENCES stacks(local_id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL DEFAULT 0,
		due_at INTEGER,
		status TEXT NOT NULL DEFAULT 'up_to_date',
		last_modified_local INTEGER NOT NULL DEFAULT 0,
		UNIQUE (account_id, remote_id)
	);

	CREATE TABLE IF NOT EXISTS labels (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		board_local_id INTEGER NOT NULL REFERENCES boards(local_id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'up_to_date',
		last_modified_local INTEGER NOT NULL DEFAULT 0,
		UNIQUE (account_id, remote_id)
	);

	CREATE TABLE IF NOT EXISTS users (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id INTEGER,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		uid TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'up_to_date',
		last_modified_local INTEGER NOT NULL DEFAULT 0,
		UNIQUE (account_id, uid)
	);

	CREATE TABLE IF NOT EXISTS card_users (
		card_local_id INTEGER NOT NULL REFERENCES cards(local_id) ON DELETE CASCADE,
		user_local_id INTEGER NOT NULL REFERENCES users(local_id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'up_to_date',
		PRIMARY KEY (card_local_id, user_local_id)
	);

	CREATE TABLE IF NOT EXISTS card_labels (
		card_local_id INTEGER NOT NULL REFERENCES cards(local_id) ON DELETE CASCADE,
		label_local_id INTEGER NOT NULL REFERENCES labels(local_id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'up_to_date',
		PRIMARY KEY (card_local_id, label_local_id)
	);

	CREATE INDEX IF NOT EXISTS idx_boards_account ON boards(account_id);
	CREATE INDEX IF NOT EXISTS idx_boards_status ON boards(status);
	CREATE INDEX IF NOT EXISTS idx_stacks_board ON stacks(board_local_id);
	CREATE INDEX IF NOT EXISTS idx_stacks_status ON stacks(status);
	CREATE INDEX IF NOT EXISTS idx_cards_stack ON cards(stack_local_id);
	CREATE INDEX IF NOT EXISTS idx_cards_status ON cards(status);
	CREATE INDEX IF NOT EXISTS idx_labels_board ON labels(board_local_id);
	CREATE INDEX IF NOT EXISTS idx_users_account ON users(account_id);
	CREATE INDEX IF NOT EXISTS idx_card_users_user ON card_users(user_local_id);
	CREATE INDEX IF NOT EXISTS idx_card_labels_label ON card_labels(label_local_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// publish forwards a change event to the hub, if one is attached.
func (s *Store) publish(accountID int64, tables ...notify.Table) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(notify.Event{AccountID: accountID, Tables: tables})
}

// timeToMillis converts a time to epoch milliseconds; zero time maps to 0.
func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// millisToTime is the inverse of timeToMillis.
func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// timePtrToNull converts an optional time to a nullable column value.
func timePtrToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// nullToTimePtr is the inverse of timePtrToNull.
func nullToTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}

// remoteIDToNull converts an optional remote id to a nullable column value.
func remoteIDToNull(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// nullToRemoteID is the inverse of remoteIDToNull.
func nullToRemoteID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}
