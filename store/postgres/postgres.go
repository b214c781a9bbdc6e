// Package postgres implements the same rollout index as store/sqlite, for
// multi-process deployments where several front-ends share one
// $CODEX_HOME/sessions tree and need a consistent, concurrently-writable
// index rather than one process's local SQLite file. Grounded on
// store/postgres/postgres.go's externally-owned-pool constructor pattern:
// the caller creates and closes the *pgxpool.Pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Index is the postgres-backed rollout index. The caller owns pool.
type Index struct {
	pool *pgxpool.Pool
}

// New creates an Index using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// Init creates the index table and its ordering index if they don't exist.
func (i *Index) Init(ctx context.Context) error {
	_, err := i.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS rollout_index (
		conversation_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		provider TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		modified_at TIMESTAMPTZ NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("postgres: create rollout_index table: %w", err)
	}
	_, err = i.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS rollout_index_modified_at
		ON rollout_index(modified_at DESC)`)
	if err != nil {
		return fmt.Errorf("postgres: create rollout_index_modified_at index: %w", err)
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

// Upsert records or refreshes a rollout file's index row.
func (i *Index) Upsert(ctx context.Context, e Entry) error {
	_, err := i.pool.Exec(ctx, `
		INSERT INTO rollout_index (conversation_id, path, provider, started_at, modified_at, turn_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id) DO UPDATE SET
			path = excluded.path,
			provider = excluded.provider,
			modified_at = excluded.modified_at,
			turn_count = excluded.turn_count
	`, e.ConversationID, e.Path, e.Provider, e.StartedAt, e.ModifiedAt, e.TurnCount)
	if err != nil {
		return fmt.Errorf("postgres: upsert rollout_index: %w", err)
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
	afterModified := time.Unix(1<<62, 0)
	afterID := ""
	if cursor != "" {
		var err error
		afterModified, afterID, err = decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
	}

	query := `SELECT conversation_id, path, provider, started_at, modified_at, turn_count
		FROM rollout_index
		WHERE (modified_at < $1 OR (modified_at = $1 AND conversation_id > $2))`
	args := []any{afterModified, afterID}
	if provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, len(args)+1)
		args = append(args, provider)
	}
	query += fmt.Sprintf(` ORDER BY modified_at DESC, conversation_id ASC LIMIT $%d`, len(args)+1)
	args = append(args, pageSize)

	rows, err := i.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("postgres: list rollout_index: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ConversationID, &e.Path, &e.Provider, &e.StartedAt, &e.ModifiedAt, &e.TurnCount); err != nil {
			return Page{}, fmt.Errorf("postgres: scan rollout_index row: %w", err)
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("postgres: iterate rollout_index rows: %w", err)
	}
	if len(page.Entries) == pageSize {
		last := page.Entries[len(page.Entries)-1]
		page.NextCursor = encodeCursor(last.ModifiedAt, last.ConversationID)
	}
	return page, nil
}

func encodeCursor(modifiedAt time.Time, id string) string {
	return fmt.Sprintf("%d:%s", modifiedAt.UnixNano(), id)
}

func decodeCursor(cursor string) (time.Time, string, error) {
	var nanos int64
	var id string
	n, err := fmt.Sscanf(cursor, "%d:%s", &nanos, &id)
	if err != nil || n != 2 {
		return time.Time{}, "", fmt.Errorf("postgres: invalid cursor %q", cursor)
	}
	return time.Unix(0, nanos), id, nil
}
