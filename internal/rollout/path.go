// Package rollout implements the Rollout Recorder (C3): an append-only
// JSONL journal per conversation, paginated listing for resume pickers, and
// replay into a live TurnContext/ResponseItem sequence. Grounded on
// store/sqlite's single-writer-goroutine discipline and id.go's
// time-sortable UUIDv7, generalized from a SQL table to a flat append-only
// file per conversation.
package rollout

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/nevindra/codexcore"
)

// PathFor returns the file path for a new rollout, per the layout
// <home>/sessions/YYYY/MM/DD/<ts>-<conversationID>.jsonl. Files are never
// rewritten; they grow only.
func PathFor(home string, id codexcore.ConversationId, startedAt time.Time) string {
	day := startedAt.UTC().Format("2006/01/02")
	ts := startedAt.UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s.jsonl", ts, id)
	return filepath.Join(home, "sessions", day, name)
}

// SessionsRoot returns the directory ListConversations scans.
func SessionsRoot(home string) string {
	return filepath.Join(home, "sessions")
}
