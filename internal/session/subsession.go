package session

import (
	"fmt"
	"time"
)

// ViewOptions shape one sub-session.
type ViewOptions struct {
	// ConnectDelay is the simulated latency between entering connecting and
	// becoming ready.
	ConnectDelay time.Duration
	// TickInterval is the background tick period while the view is active.
	TickInterval time.Duration
	// LogCapacity bounds the view's log.
	LogCapacity int
}

// DefaultTerminalOptions returns the terminal view defaults.
func DefaultTerminalOptions() ViewOptions {
	return ViewOptions{ConnectDelay: 1500 * time.Millisecond, TickInterval: 5 * time.Second, LogCapacity: 500}
}

// DefaultFramebufferOptions returns the framebuffer view defaults.
func DefaultFramebufferOptions() ViewOptions {
	return ViewOptions{ConnectDelay: 2 * time.Second, TickInterval: 8 * time.Second, LogCapacity: 200}
}

// SubSession is a transport-facing view (terminal or framebuffer) nested in
// a session. It runs an idle -> connecting -> ready cycle and keeps a bounded
// log. It never changes session-wide state; the session drives it.
//
// gen is bumped every time the sub-session enters connecting or is
// deactivated. Delayed tasks carry the gen they were scheduled under and are
// dropped when it no longer matches, so a view switched away from mid-connect
// never completes that connect in the background.
type SubSession struct {
	kind         ViewKind
	opts         ViewOptions
	active       bool
	phase        Phase
	reconnecting bool
	gen          uint64
	log          *RingLog
	ticks        uint64

	sentSeq uint64
	cleared bool
}

func newSubSession(kind ViewKind, opts ViewOptions) *SubSession {
	return &SubSession{
		kind:  kind,
		opts:  opts,
		phase: PhaseIdle,
		log:   NewRingLog(opts.LogCapacity),
	}
}

func (s *SubSession) Kind() ViewKind       { return s.kind }
func (s *SubSession) Active() bool         { return s.active }
func (s *SubSession) Phase() Phase         { return s.phase }
func (s *SubSession) Options() ViewOptions { return s.opts }
func (s *SubSession) Entries() []LogEntry  { return s.log.Entries() }
func (s *SubSession) LogLen() int          { return s.log.Len() }

// activate marks the view active. It reports whether a connect cycle was
// started; the caller schedules the matching taskConnected.
func (s *SubSession) activate(now time.Time) bool {
	if s.active {
		return false
	}
	s.active = true
	if s.phase == PhaseReady {
		return false
	}
	s.enterConnecting()
	s.append(now, EntrySystem, fmt.Sprintf("Connecting %s...", s.kind))
	return true
}

// deactivate stops background work. A connect in progress is abandoned and
// the log is kept as is.
func (s *SubSession) deactivate() {
	if !s.active {
		return
	}
	s.active = false
	s.gen++
	s.reconnecting = false
	if s.phase == PhaseConnecting {
		s.phase = PhaseIdle
	}
}

// interrupt re-enters connecting because the session lost its transport.
// The session completes it with connected when its reconnect timer fires.
func (s *SubSession) interrupt(now time.Time, reason string) bool {
	if !s.active {
		return false
	}
	s.enterConnecting()
	s.reconnecting = true
	s.append(now, EntrySystem, reason)
	return true
}

// connected finishes a connect cycle started under gen.
func (s *SubSession) connected(now time.Time, gen uint64) bool {
	if !s.active || gen != s.gen || s.phase != PhaseConnecting {
		return false
	}
	s.phase = PhaseReady
	if s.reconnecting {
		s.reconnecting = false
		s.append(now, EntrySystem, fmt.Sprintf("Reconnected %s", s.kind))
	} else {
		s.append(now, EntrySystem, fmt.Sprintf("Connected %s", s.kind))
	}
	return true
}

// interactive returns nil when the view accepts user input.
func (s *SubSession) interactive() error {
	if !s.active {
		return ErrViewInactive
	}
	if s.phase != PhaseReady {
		return ErrNotReady
	}
	return nil
}

// tick runs one background tick. It reports whether the view was eligible
// to produce output, i.e. active and ready.
func (s *SubSession) tick() bool {
	if !s.active || s.phase != PhaseReady {
		return false
	}
	s.ticks++
	return true
}

func (s *SubSession) enterConnecting() {
	s.phase = PhaseConnecting
	s.gen++
}

func (s *SubSession) append(now time.Time, kind EntryKind, text string) LogEntry {
	return s.log.Append(now, kind, text)
}

func (s *SubSession) wipe() {
	s.log.Reset()
	s.cleared = true
}

// delta returns what was appended since the previous call, or nil.
func (s *SubSession) delta() *LogDelta {
	entries := s.log.Since(s.sentSeq)
	if len(entries) == 0 && !s.cleared {
		return nil
	}
	if len(entries) > 0 {
		s.sentSeq = entries[len(entries)-1].Seq
	}
	d := &LogDelta{View: s.kind, Phase: s.phase, Entries: entries, Cleared: s.cleared}
	s.cleared = false
	return d
}
