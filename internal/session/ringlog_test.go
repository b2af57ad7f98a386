package session

import (
	"fmt"
	"testing"
)

func TestRingLog_AppendBelowCapacity(t *testing.T) {
	l := NewRingLog(4)
	l.Append(epoch, EntryInput, "a")
	l.Append(epoch, EntryOutput, "b")

	got := l.Entries()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "a" || got[1].Text != "b" {
		t.Errorf("entries = %+v", got)
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("seqs = %d,%d, want 1,2", got[0].Seq, got[1].Seq)
	}
}

func TestRingLog_EvictsOldestFirst(t *testing.T) {
	l := NewRingLog(3)
	for i := 1; i <= 7; i++ {
		l.Append(epoch, EntryOutput, fmt.Sprintf("line %d", i))
	}

	if l.Len() != 3 || l.Cap() != 3 {
		t.Fatalf("len/cap = %d/%d, want 3/3", l.Len(), l.Cap())
	}
	got := l.Entries()
	want := []string{"line 5", "line 6", "line 7"}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("entry[%d] = %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestRingLog_Since(t *testing.T) {
	l := NewRingLog(3)
	for i := 1; i <= 5; i++ {
		l.Append(epoch, EntryOutput, fmt.Sprint(i))
	}

	tests := []struct {
		seq  uint64
		want int
	}{
		{0, 3},
		{3, 2},
		{4, 1},
		{5, 0},
		{9, 0},
	}
	for _, tt := range tests {
		if got := l.Since(tt.seq); len(got) != tt.want {
			t.Errorf("Since(%d) returned %d entries, want %d", tt.seq, len(got), tt.want)
		}
	}
}

func TestRingLog_ResetKeepsSequence(t *testing.T) {
	l := NewRingLog(2)
	l.Append(epoch, EntryOutput, "x")
	l.Append(epoch, EntryOutput, "y")
	l.Reset()

	if l.Len() != 0 || l.Entries() != nil {
		t.Fatalf("log not empty after Reset")
	}
	e := l.Append(epoch, EntryOutput, "z")
	if e.Seq != 3 {
		t.Errorf("seq after reset = %d, want 3", e.Seq)
	}
}

func TestRingLog_MinimumCapacity(t *testing.T) {
	l := NewRingLog(0)
	l.Append(epoch, EntryOutput, "a")
	l.Append(epoch, EntryOutput, "b")
	if got := l.Entries(); len(got) != 1 || got[0].Text != "b" {
		t.Errorf("entries = %+v, want only b", got)
	}
}
