package patch

import "testing"

func TestApplyHunksSimpleReplace(t *testing.T) {
	original := "one\ntwo\nthree\n"
	hunks := []Hunk{{
		Lines: []HunkLine{
			{Kind: HunkContext, Text: "one"},
			{Kind: HunkOld, Text: "two"},
			{Kind: HunkNew, Text: "TWO"},
			{Kind: HunkContext, Text: "three"},
		},
	}}
	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := "one\nTWO\nthree\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyHunksNoMatchFails(t *testing.T) {
	hunks := []Hunk{{Lines: []HunkLine{{Kind: HunkOld, Text: "nonexistent"}, {Kind: HunkNew, Text: "x"}}}}
	if _, err := applyHunks("a\nb\nc", hunks); err == nil {
		t.Fatal("expected no-match error")
	}
}

func TestApplyHunksAmbiguousMatchFails(t *testing.T) {
	original := "dup\ndup\ndup\n"
	hunks := []Hunk{{Lines: []HunkLine{{Kind: HunkOld, Text: "dup"}, {Kind: HunkNew, Text: "X"}}}}
	if _, err := applyHunks(original, hunks); err == nil {
		t.Fatal("expected ambiguous-match error")
	}
}

func TestApplyHunksChangeContextNarrowsSearch(t *testing.T) {
	original := "func a() {\n  return 1\n}\nfunc b() {\n  return 1\n}\n"
	hunks := []Hunk{{
		ChangeContext: "func b",
		Lines: []HunkLine{
			{Kind: HunkOld, Text: "  return 1"},
			{Kind: HunkNew, Text: "  return 2"},
		},
	}}
	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := "func a() {\n  return 1\n}\nfunc b() {\n  return 2\n}\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyHunksMultipleSequential(t *testing.T) {
	original := "a\nb\nc\nd\ne\n"
	hunks := []Hunk{
		{Lines: []HunkLine{{Kind: HunkOld, Text: "a"}, {Kind: HunkNew, Text: "A"}}},
		{Lines: []HunkLine{{Kind: HunkOld, Text: "d"}, {Kind: HunkNew, Text: "D"}}},
	}
	got, err := applyHunks(original, hunks)
	if err != nil {
		t.Fatalf("applyHunks: %v", err)
	}
	want := "A\nb\nc\nD\ne\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
