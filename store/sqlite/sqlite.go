// Package sqlite implements a queryable secondary index over the rollout
// JSONL files written by internal/rollout, using pure-Go SQLite (no CGO).
// Grounded on store/sqlite/sqlite.go's single-connection discipline: all
// goroutines serialize through one *sql.DB with SetMaxOpenConns(1), since
// a single connection means SQLITE_BUSY never arises between this
// process's own writers and readers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Index is a queryable table of rollout files (id, path, provider, start
// time, last-modified time, turn count) kept in a SQLite file. Rows enter it
// only through Upsert; internal/rollout does not call Upsert, and its
// ListConversations walks the sessions tree rather than reading this table.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) { i.logger = l }
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New opens the index at dbPath, a separate file from any rollout JSONL.
func New(dbPath string, opts ...Option) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open driver: %w", err)
	}
	db.SetMaxOpenConns(1)
	idx := &Index{db: db, logger: nopLogger}
	for _, o := range opts {
		o(idx)
	}
	return idx, nil
}

// Init creates the index table if it doesn't already exist.
func (i *Index) Init(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS rollout_index (
		conversation_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		provider TEXT,
		started_at INTEGER NOT NULL,
		modified_at INTEGER NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: create rollout_index table: %w", err)
	}
	_, err = i.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS rollout_index_modified_at
		ON rollout_index(modified_at DESC)`)
	if err != nil {
		return fmt.Errorf("sqlite: create rollout_index_modified_at index: %w", err)
	}
	return nil
}

// Entry is one row of the index.
type Entry struct {
	ConversationID string
	Path           string
	Provider       string
	StartedAt      time.Time
	ModifiedAt     time.Time
	TurnCount      int
}

// Upsert records or refreshes a rollout file's index row. An existing row
// keeps its started_at and takes the new path, provider, modified_at and
// turn_count.
func (i *Index) Upsert(ctx context.Context, e Entry) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO rollout_index (conversation_id, path, provider, started_at, modified_at, turn_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			path = excluded.path,
			provider = excluded.provider,
			modified_at = excluded.modified_at,
			turn_count = excluded.turn_count
	`, e.ConversationID, e.Path, e.Provider, e.StartedAt.Unix(), e.ModifiedAt.Unix(), e.TurnCount)
	if err != nil {
		return fmt.Errorf("sqlite: upsert rollout_index: %w", err)
	}
	return nil
}

// Page is one page of indexed conversations, newest-first.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// List returns conversations ordered by ModifiedAt descending, optionally
// filtered by provider and paginated by an opaque cursor from a prior Page.
func (i *Index) List(ctx context.Context, pageSize int, cursor string, provider string) (Page, error) {
	if pageSize <= 0 {
		pageSize = 25
	}
	var afterModified int64 = 1<<63 - 1
	var afterID string
	if cursor != "" {
		var err error
		afterModified, afterID, err = decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
	}

	query := `SELECT conversation_id, path, provider, started_at, modified_at, turn_count
		FROM rollout_index
		WHERE (modified_at < ? OR (modified_at = ? AND conversation_id > ?))`
	args := []any{afterModified, afterModified, afterID}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY modified_at DESC, conversation_id ASC LIMIT ?`
	args = append(args, pageSize)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("sqlite: list rollout_index: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var e Entry
		var started, modified int64
		if err := rows.Scan(&e.ConversationID, &e.Path, &e.Provider, &started, &modified, &e.TurnCount); err != nil {
			return Page{}, fmt.Errorf("sqlite: scan rollout_index row: %w", err)
		}
		e.StartedAt = time.Unix(started, 0).UTC()
		e.ModifiedAt = time.Unix(modified, 0).UTC()
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("sqlite: iterate rollout_index rows: %w", err)
	}
	if len(page.Entries) == pageSize {
		last := page.Entries[len(page.Entries)-1]
		page.NextCursor = encodeCursor(last.ModifiedAt.Unix(), last.ConversationID)
	}
	return page, nil
}

// Close releases the underlying connection.
func (i *Index) Close() error { return i.db.Close() }

func encodeCursor(modifiedAt int64, id string) string {
	return fmt.Sprintf("%d:%s", modifiedAt, id)
}

func decodeCursor(cursor string) (int64, string, error) {
	var modified int64
	var id string
	n, err := fmt.Sscanf(cursor, "%d:%s", &modified, &id)
	if err != nil || n != 2 {
		return 0, "", fmt.Errorf("sqlite: invalid cursor %q", cursor)
	}
	return modified, id, nil
}
