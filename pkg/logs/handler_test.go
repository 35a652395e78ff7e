package logs

import (
	"strings"
	"testing"
)

func TestHandler_AppendAndContents(t *testing.T) {
	h := NewHandler("app1")

	h.Append("uploading artifact")
	h.Append("running deploy hook")

	if h.Name() != "app1" {
		t.Errorf("Expected name app1, got %s", h.Name())
	}
	want := "uploading artifact\nrunning deploy hook"
	if got := h.Contents(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestHandler_WriteSplitsLines(t *testing.T) {
	h := NewHandler("app1")

	if _, err := h.Write([]byte("first line\nsecond ")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := h.Write([]byte("half\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 complete lines, got %d", len(entries))
	}
	if entries[1].Line != "second half" {
		t.Errorf("Expected split line to be joined, got %q", entries[1].Line)
	}
}

func TestHandler_FlushEmitsPartialLine(t *testing.T) {
	h := NewHandler("app1")

	_, _ = h.Write([]byte("no newline"))
	if len(h.Entries()) != 0 {
		t.Fatal("Expected unterminated line to stay buffered")
	}

	h.Flush()
	entries := h.Entries()
	if len(entries) != 1 || entries[0].Line != "no newline" {
		t.Errorf("Expected flushed partial line, got %v", entries)
	}
}

func TestHandler_TrimsOldestPastLimit(t *testing.T) {
	h := NewHandlerWithLimit("app1", 64)

	for i := 0; i < 20; i++ {
		h.Append(strings.Repeat("x", 16))
	}

	entries := h.Entries()
	if len(entries) >= 20 {
		t.Errorf("Expected trimming, still have %d entries", len(entries))
	}

	total := 0
	for _, e := range entries {
		total += len(e.Line)
	}
	if total > 64+16 {
		t.Errorf("Retained %d bytes, expected near the 64-byte limit", total)
	}
}
