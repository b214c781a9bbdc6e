package rollout

import (
	"testing"
	"time"

	"github.com/nevindra/codexcore"
)

func writeConversation(t *testing.T, home, provider string, userText string) codexcore.ConversationId {
	t.Helper()
	id := codexcore.NewConversationId()
	w, err := Create(home, id, provider, time.Now(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	item := codexcore.ResponseItem{Kind: codexcore.ItemMessage, Role: "user", Content: []codexcore.ContentPart{{Type: "text", Text: userText}}}
	if err := w.AppendResponseItem(item); err != nil {
		t.Fatal(err)
	}
	reply := codexcore.ResponseItem{Kind: codexcore.ItemMessage, Role: "assistant", Content: []codexcore.ContentPart{{Type: "text", Text: "reply to " + userText}}}
	if err := w.AppendResponseItem(reply); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestListConversationsBasicPage(t *testing.T) {
	home := t.TempDir()
	ids := make(map[codexcore.ConversationId]bool)
	for i := 0; i < 3; i++ {
		ids[writeConversation(t, home, "openai", "hello")] = true
		time.Sleep(2 * time.Millisecond) // ensure distinct mtimes for stable ordering
	}

	result, err := ListConversations(home, 10, "", "", "")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(result.Items))
	}
	for _, item := range result.Items {
		if !ids[item.ConversationID] {
			t.Errorf("unexpected conversation id %s", item.ConversationID)
		}
		if len(item.Head) == 0 {
			t.Errorf("expected non-empty head for %s", item.Path)
		}
		if len(item.Tail) == 0 {
			t.Errorf("expected non-empty tail for %s", item.Path)
		}
	}
	if result.ReachedScanCap {
		t.Errorf("did not expect to hit scan cap")
	}
}

func TestListConversationsPaginatesStably(t *testing.T) {
	home := t.TempDir()
	var all []codexcore.ConversationId
	for i := 0; i < 5; i++ {
		all = append(all, writeConversation(t, home, "openai", "hello"))
		time.Sleep(2 * time.Millisecond)
	}

	seen := make(map[codexcore.ConversationId]bool)
	cursor := ""
	for {
		page, err := ListConversations(home, 2, cursor, "", "")
		if err != nil {
			t.Fatalf("ListConversations: %v", err)
		}
		for _, item := range page.Items {
			if seen[item.ConversationID] {
				t.Fatalf("conversation %s returned twice across pages", item.ConversationID)
			}
			seen[item.ConversationID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != len(all) {
		t.Fatalf("saw %d conversations across pages, want %d", len(seen), len(all))
	}
}

func TestListConversationsFiltersByProvider(t *testing.T) {
	home := t.TempDir()
	writeConversation(t, home, "openai", "a")
	writeConversation(t, home, "azure", "b")

	result, err := ListConversations(home, 10, "", "", "azure")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Provider != "azure" {
		t.Fatalf("unexpected filtered result: %+v", result.Items)
	}
}

func TestListConversationsEmptyHomeNoError(t *testing.T) {
	home := t.TempDir()
	result, err := ListConversations(home, 10, "", "", "")
	if err != nil {
		t.Fatalf("ListConversations on empty home: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(result.Items))
	}
}
