package postgres

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	now := time.Now().Round(0)
	encoded := encodeCursor(now, "conv-123")
	decoded, id, err := decodeCursor(encoded)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if id != "conv-123" {
		t.Errorf("id = %q, want conv-123", id)
	}
	if !decoded.Equal(now) {
		t.Errorf("decoded = %v, want %v", decoded, now)
	}
}

func TestDecodeCursorRejectsMalformed(t *testing.T) {
	if _, _, err := decodeCursor("not-a-cursor"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
