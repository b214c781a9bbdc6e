package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertThenList(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		e := Entry{
			ConversationID: string(rune('a' + i)),
			Path:           "/tmp/x.jsonl",
			Provider:       "openai",
			StartedAt:      now,
			ModifiedAt:     now.Add(time.Duration(i) * time.Second),
			TurnCount:      i,
		}
		if err := idx.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	page, err := idx.List(ctx, 10, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(page.Entries))
	}
	if page.Entries[0].ConversationID != "c" {
		t.Errorf("first entry = %s, want newest (c)", page.Entries[0].ConversationID)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Now()

	e := Entry{ConversationID: "a", Path: "/tmp/a.jsonl", Provider: "openai", StartedAt: now, ModifiedAt: now, TurnCount: 1}
	if err := idx.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	e.TurnCount = 5
	e.ModifiedAt = now.Add(time.Minute)
	if err := idx.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	page, err := idx.List(ctx, 10, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("got %d entries, want 1 (upsert, not insert)", len(page.Entries))
	}
	if page.Entries[0].TurnCount != 5 {
		t.Errorf("TurnCount = %d, want 5", page.Entries[0].TurnCount)
	}
}

func TestListFiltersByProvider(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	now := time.Now()

	if err := idx.Upsert(ctx, Entry{ConversationID: "a", Path: "p", Provider: "openai", StartedAt: now, ModifiedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, Entry{ConversationID: "b", Path: "p", Provider: "azure", StartedAt: now, ModifiedAt: now}); err != nil {
		t.Fatal(err)
	}

	page, err := idx.List(ctx, 10, "", "azure")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].ConversationID != "b" {
		t.Fatalf("unexpected filtered page: %+v", page.Entries)
	}
}
