package patch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
)

func TestToolApplyAddFile(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	tool := New(bus, nil)
	raw := "*** Begin Patch\n*** Add File: hello.txt\n+hi there\n*** End Patch\n"
	summary, diff, err := tool.Apply(context.Background(), codexcore.ConversationId("conv1"), dir, raw)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !strings.Contains(diff, "+hi there") {
		t.Errorf("diff = %q", diff)
	}
	if summary != "Success. Updated the following files:\nA hello.txt" {
		t.Errorf("summary = %q", summary)
	}

	content, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hi there" {
		t.Errorf("content = %q", content)
	}

	select {
	case ev := <-ch:
		if ev.Kind != codexcore.EvTurnDiff {
			t.Errorf("event kind = %s, want turn_diff", ev.Kind)
		}
	default:
		t.Error("expected a TurnDiff event to have been published")
	}
}

func TestToolApplyRejectsOutsideWorkspace(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New(0)
	tool := New(bus, nil)
	raw := "*** Begin Patch\n*** Add File: ../escape.txt\n+x\n*** End Patch\n"
	_, _, err := tool.Apply(context.Background(), codexcore.ConversationId("conv1"), dir, raw)
	if err == nil || !strings.Contains(err.Error(), codexcore.PatchRejectedOutsideWorkspace) {
		t.Fatalf("err = %v, want outside-workspace rejection", err)
	}
}

func TestToolApplyUpdateFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.go"), []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bus := eventbus.New(0)
	tool := New(bus, nil)
	raw := "*** Begin Patch\n" +
		"*** Update File: f.go\n" +
		"@@\n" +
		" package main\n" +
		"-\n" +
		"+// updated\n" +
		" func main() {}\n" +
		"*** End Patch\n"
	summary, _, err := tool.Apply(context.Background(), codexcore.ConversationId("conv1"), dir, raw)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if summary != "Success. Updated the following files:\nM f.go" {
		t.Errorf("summary = %q", summary)
	}
	content, _ := os.ReadFile(filepath.Join(dir, "f.go"))
	want := "package main\n// updated\nfunc main() {}\n"
	if string(content) != want {
		t.Errorf("content = %q, want %q", content, want)
	}
}

func TestToolApplyVerificationFailureMutatesNothing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "exists.txt"), []byte("original\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bus := eventbus.New(0)
	tool := New(bus, nil)
	// Second op targets a file that does not exist; must fail verification
	// and leave the first op's target file untouched.
	raw := "*** Begin Patch\n" +
		"*** Add File: new.txt\n" +
		"+hi\n" +
		"*** Delete File: missing.txt\n" +
		"*** End Patch\n"
	_, _, err := tool.Apply(context.Background(), codexcore.ConversationId("conv1"), dir, raw)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "new.txt")); statErr == nil {
		t.Error("new.txt must not have been created on verification failure")
	}
}

func TestToolApplyMoveWithoutContentDeltaOmitsDiff(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.txt"), []byte("same\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bus := eventbus.New(0)
	tool := New(bus, nil)
	raw := "*** Begin Patch\n" +
		"*** Update File: old.txt\n" +
		"*** Move to: new.txt\n" +
		"@@\n" +
		" same\n" +
		"*** End Patch\n"
	summary, diff, err := tool.Apply(context.Background(), codexcore.ConversationId("conv1"), dir, raw)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff != "" {
		t.Errorf("expected no diff for a pure move, got %q", diff)
	}
	if summary != "Success. Updated the following files:\nM old.txt -> new.txt" {
		t.Errorf("summary = %q", summary)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.txt")); err != nil {
		t.Error("new.txt should exist after the move")
	}
	if _, err := os.Stat(filepath.Join(dir, "old.txt")); err == nil {
		t.Error("old.txt should no longer exist after the move")
	}
}
