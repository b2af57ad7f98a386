package session

import "time"

// EntryKind classifies a sub-session log entry.
type EntryKind string

const (
	EntryOutput EntryKind = "output"
	EntryInput  EntryKind = "input"
	EntrySystem EntryKind = "system"
)

// LogEntry is one line (terminal) or frame (framebuffer) in a sub-session log.
type LogEntry struct {
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
}

// RingLog is a fixed-capacity log. Once full, each append evicts the oldest
// entry. Sequence numbers keep increasing across evictions and resets so
// readers can ask for what they have not seen yet.
//
// RingLog is not safe for concurrent use; the session guards it.
type RingLog struct {
	entries []LogEntry
	head    int // next write position
	count   int
	nextSeq uint64
}

// NewRingLog creates a log holding at most capacity entries (minimum 1).
func NewRingLog(capacity int) *RingLog {
	if capacity < 1 {
		capacity = 1
	}
	return &RingLog{entries: make([]LogEntry, capacity), nextSeq: 1}
}

// Append stores an entry, assigning its sequence number, and returns it.
func (l *RingLog) Append(at time.Time, kind EntryKind, text string) LogEntry {
	e := LogEntry{Seq: l.nextSeq, At: at, Kind: kind, Text: text}
	l.nextSeq++
	l.entries[l.head] = e
	l.head = (l.head + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
	return e
}

// Entries returns the retained entries oldest first.
func (l *RingLog) Entries() []LogEntry {
	if l.count == 0 {
		return nil
	}
	result := make([]LogEntry, l.count)
	if l.count < len(l.entries) {
		copy(result, l.entries[:l.count])
	} else {
		// Full: head is the oldest entry.
		n := copy(result, l.entries[l.head:])
		copy(result[n:], l.entries[:l.head])
	}
	return result
}

// Since returns retained entries with a sequence number greater than seq.
func (l *RingLog) Since(seq uint64) []LogEntry {
	all := l.Entries()
	for i, e := range all {
		if e.Seq > seq {
			return all[i:]
		}
	}
	return nil
}

func (l *RingLog) Len() int { return l.count }
func (l *RingLog) Cap() int { return len(l.entries) }

// Reset drops every entry. Sequence numbers are not reused.
func (l *RingLog) Reset() {
	clear(l.entries)
	l.head = 0
	l.count = 0
}
