package patch

import (
	"strings"
	"testing"
)

func TestUnifiedDiffNoChangeIsEmpty(t *testing.T) {
	if got := unifiedDiff("a.txt", "same\n", "same\n"); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
}

func TestUnifiedDiffHeaders(t *testing.T) {
	got := unifiedDiff("a.txt", "one\ntwo\n", "one\nTWO\n")
	if !strings.HasPrefix(got, "--- a/a.txt\n+++ b/a.txt\n") {
		t.Errorf("missing headers, got %q", got)
	}
	if !strings.Contains(got, "-two") || !strings.Contains(got, "+TWO") {
		t.Errorf("missing expected hunk lines, got %q", got)
	}
}

func TestUnifiedDiffAddedFile(t *testing.T) {
	got := unifiedDiff("new.txt", "", "hello\n")
	if !strings.Contains(got, "+hello") {
		t.Errorf("got %q", got)
	}
}
