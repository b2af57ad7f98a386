package logging

import (
	"log"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitReadTailClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "remote-access.log")
	Init(path)
	t.Cleanup(Close)

	for _, msg := range []string{"one", "two", "three"} {
		log.Print(msg)
	}

	tail, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	lines := strings.Split(tail, "\n")
	if len(lines) != 2 {
		t.Fatalf("ReadTail(2) returned %d lines: %q", len(lines), tail)
	}
	if !strings.HasSuffix(lines[0], "two") || !strings.HasSuffix(lines[1], "three") {
		t.Errorf("tail = %q, want lines ending in two, three", lines)
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	tail, err = ReadTail(10)
	if err != nil {
		t.Fatalf("ReadTail after Clear: %v", err)
	}
	if tail != "" {
		t.Errorf("tail after Clear = %q, want empty", tail)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"ls\n[session] forged", "ls [session] forged"},
		{"a\r\tb", "a  b"},
		{"bell\x07del\x7f", "belldel"},
		{"unicode ✓", "unicode ✓"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
