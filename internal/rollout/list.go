package rollout

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nevindra/codexcore"
)

// ScanCap bounds worst-case I/O for an unfiltered directory sweep.
const ScanCap = 10_000

// HeadEntry is one structured entry from a rollout's head or tail, enough
// to populate a resume picker without loading the full file.
type HeadEntry struct {
	Kind codexcore.RolloutItemKind `json:"kind"`
	Text string                    `json:"text,omitempty"`
}

// ConversationSummary describes one rollout file for a picker UI.
type ConversationSummary struct {
	Path           string                 `json:"path"`
	ConversationID codexcore.ConversationId `json:"conversation_id"`
	Provider       string                 `json:"provider,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	ModifiedAt     time.Time              `json:"modified_at"`
	Head           []HeadEntry            `json:"head"`
	Tail           []HeadEntry            `json:"tail"`
}

// ListResult is the page returned by ListConversations.
type ListResult struct {
	Items           []ConversationSummary `json:"items"`
	NextCursor      string                `json:"next_cursor,omitempty"`
	NumScannedFiles int                   `json:"num_scanned_files"`
	ReachedScanCap  bool                  `json:"reached_scan_cap"`
}

// cursorPayload encodes the (timestamp, conversation id) of the last item
// returned so pagination is stable under concurrent appends: files are
// ordered newest-first by ModifiedAt, ties broken by ConversationID, and the
// cursor lets the next page resume exactly after that point regardless of
// files created in between.
type cursorPayload struct {
	ModifiedAt time.Time                `json:"modified_at"`
	ID         codexcore.ConversationId `json:"id"`
}

func encodeCursor(c cursorPayload) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (cursorPayload, error) {
	var c cursorPayload
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("rollout: invalid cursor: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("rollout: invalid cursor: %w", err)
	}
	return c, nil
}

// ListConversations scans home's sessions tree for rollout files and returns
// a stable page of summaries, newest-first. sourceFilter matches against
// Provider when non-empty (named source_filter on the wire, since this
// implementation's only "source" dimension is the configured provider);
// providerFilter is an alias for the same dimension
// kept for interface-compatibility with multi-provider homes.
func ListConversations(home string, pageSize int, cursor string, sourceFilter, providerFilter string) (ListResult, error) {
	if pageSize <= 0 {
		pageSize = 25
	}

	var after *cursorPayload
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return ListResult{}, err
		}
		after = &c
	}

	root := SessionsRoot(home)
	type candidate struct {
		path       string
		modifiedAt time.Time
	}
	var candidates []candidate
	scanned := 0
	reachedCap := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		scanned++
		if scanned > ScanCap {
			reachedCap = true
			return fs.SkipAll
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidates = append(candidates, candidate{path: path, modifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("rollout: scan sessions: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modifiedAt.After(candidates[j].modifiedAt)
	})

	result := ListResult{NumScannedFiles: scanned, ReachedScanCap: reachedCap}
	skipping := after != nil

	for _, c := range candidates {
		summary, err := summarize(c.path, c.modifiedAt)
		if err != nil {
			continue // unreadable/corrupt rollout: skip, don't fail the page
		}

		if skipping {
			if summary.ModifiedAt.Equal(after.ModifiedAt) && summary.ConversationID == after.ID {
				skipping = false
			}
			continue
		}

		if sourceFilter != "" && summary.Provider != sourceFilter {
			continue
		}
		if providerFilter != "" && summary.Provider != providerFilter {
			continue
		}

		result.Items = append(result.Items, summary)
		if len(result.Items) == pageSize {
			result.NextCursor = encodeCursor(cursorPayload{ModifiedAt: summary.ModifiedAt, ID: summary.ConversationID})
			break
		}
	}

	return result, nil
}

// summarize reads just enough of path to build a ConversationSummary: the
// session meta, the first user message, and the last assistant message.
func summarize(path string, modifiedAt time.Time) (ConversationSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return ConversationSummary{}, err
	}
	defer f.Close()

	summary := ConversationSummary{Path: path, ModifiedAt: modifiedAt}
	var lastAssistant *HeadEntry
	haveFirstUser := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		var line codexcore.RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		switch line.Kind {
		case codexcore.RolloutSessionMeta:
			var meta codexcore.SessionMeta
			if err := json.Unmarshal(line.Item, &meta); err == nil {
				summary.ConversationID = meta.ConversationID
				summary.Provider = meta.Provider
				summary.StartedAt = meta.StartedAt
				summary.Head = append(summary.Head, HeadEntry{Kind: codexcore.RolloutSessionMeta})
			}

		case codexcore.RolloutResponseItem:
			var item codexcore.ResponseItem
			if err := json.Unmarshal(line.Item, &item); err != nil {
				continue
			}
			if item.Kind != codexcore.ItemMessage {
				continue
			}
			text := firstText(item.Content)
			if item.Role == "user" && !haveFirstUser {
				summary.Head = append(summary.Head, HeadEntry{Kind: codexcore.RolloutResponseItem, Text: text})
				haveFirstUser = true
			}
			if item.Role == "assistant" {
				lastAssistant = &HeadEntry{Kind: codexcore.RolloutResponseItem, Text: text}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return ConversationSummary{}, err
	}
	if summary.ConversationID == "" {
		return ConversationSummary{}, fmt.Errorf("rollout: %s has no session_meta", path)
	}
	if lastAssistant != nil {
		summary.Tail = append(summary.Tail, *lastAssistant)
	}
	return summary, nil
}

func firstText(parts []codexcore.ContentPart) string {
	for _, p := range parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}
