package session

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// auto is one automatic event inside a batch.
type auto struct {
	at       time.Time
	clock    bool
	viewTick bool
	task     *task
	event    *event
}

// process applies one batch and reports whether the session ended.
func (s *Session) process(b *batch) bool {
	now := s.clock.Now()

	s.mu.Lock()
	s.checkExpiry(now)

	errs := make([]error, len(b.commands))
	for i, c := range b.commands {
		errs[i] = s.applyCommand(c, now)
	}

	if !s.ended {
		var autos []auto
		for _, t := range b.ticks {
			autos = append(autos, auto{at: t, clock: true})
		}
		for _, t := range b.viewTicks {
			autos = append(autos, auto{at: t, viewTick: true})
		}
		for i := range b.events {
			autos = append(autos, auto{at: b.events[i].at, event: &b.events[i]})
		}
		for _, t := range s.sched.popDue(now) {
			autos = append(autos, auto{at: t.at, task: &t})
		}
		sort.SliceStable(autos, func(i, j int) bool { return autos[i].at.Before(autos[j].at) })
		for _, a := range autos {
			s.applyAuto(a, now)
		}
		// Tasks scheduled with no delay while applying this batch.
		for due := s.sched.popDue(now); len(due) > 0; due = s.sched.popDue(now) {
			for _, t := range due {
				s.runTask(t, now)
			}
		}
	}

	s.collectDeltas(now)
	ended := s.ended
	if !ended {
		s.armTimer(now)
	}
	s.mu.Unlock()

	s.flush()
	if ended {
		s.finish()
	}
	for i, c := range b.commands {
		c.reply <- errs[i]
	}
	return ended
}

// checkExpiry moves the session to expired once its expiry time is reached.
// It runs before anything else in a batch.
func (s *Session) checkExpiry(now time.Time) {
	if s.ended || s.status == StatusExpired {
		return
	}
	if !s.expiry.Expire(now) {
		return
	}
	s.setStatus(StatusExpired)
	s.expiredAt = now
	s.reconnectGen++
	s.sched.reset()
	s.arbiter.Suspend()
	if s.clockTicker != nil {
		s.clockTicker.Stop()
		s.clockTicker = nil
	}
	if s.samplerCancel != nil {
		s.samplerCancel()
	}
	s.emit(now, Update{Type: UpdateCountdown, Countdown: &Countdown{
		RemainingSeconds: 0,
		DurationSeconds:  int64(s.expiry.Period() / time.Second),
	}})
	s.notify(now, ReasonExpired, true)
}

func (s *Session) applyCommand(c command, now time.Time) error {
	if s.ended {
		return ErrSessionEnded
	}
	switch c.kind {
	case cmdSync:
		return nil
	case cmdEnd:
		s.teardown(now, c.reason)
		return nil
	}
	if s.status == StatusExpired {
		return &TransitionError{Op: c.kind.String(), Status: s.status}
	}

	switch c.kind {
	case cmdExtend:
		s.expiry.Extend(now, s.opts.ExtendBy)
		s.lastActivity = now
		s.notify(now, ReasonExtended, false)
		s.emitCountdown(now)
		return nil

	case cmdReconnect:
		s.lastActivity = now
		if s.status == StatusReconnecting {
			s.hastenReconnect(now)
			return nil
		}
		s.beginReconnect(now, ReasonManualReconnect, s.opts.ManualReconnectDelay)
		return nil

	case cmdSelectView:
		if _, ok := ParseViewKind(string(c.view)); !ok {
			return fmt.Errorf("%w: unknown view %q", ErrInvalidRequest, c.view)
		}
		s.lastActivity = now
		s.selectView(c.view, now)
		return nil

	case cmdSubmit:
		return s.submit(c.text, now)

	case cmdPointer:
		if err := c.pointer.Validate(); err != nil {
			return err
		}
		fb := s.arbiter.View(ViewFramebuffer)
		if err := fb.interactive(); err != nil {
			return err
		}
		s.lastActivity = now
		fb.append(now, EntryInput, c.pointer.String())
		return nil
	}
	return fmt.Errorf("%w: unknown command", ErrInvalidRequest)
}

func (s *Session) submit(text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidRequest)
	}
	if len(text) > MaxCommandLength {
		return fmt.Errorf("%w: command longer than %d bytes", ErrInvalidRequest, MaxCommandLength)
	}
	term := s.arbiter.View(ViewTerminal)
	if err := term.interactive(); err != nil {
		return err
	}
	if s.limiter != nil && !s.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	s.lastActivity = now
	term.append(now, EntryInput, "$ "+text)

	lines, clear := terminalResponse(text, terminalDevice{id: s.desc.DeviceID, host: s.desc.Endpoint.Host}, now)
	s.sched.schedule(task{
		at:    now.Add(ResponseDelay),
		kind:  taskResponse,
		view:  ViewTerminal,
		gen:   term.gen,
		lines: lines,
		clear: clear,
	})
	return nil
}

func (s *Session) applyAuto(a auto, now time.Time) {
	switch {
	case a.clock:
		s.clockTick(now)
	case a.viewTick:
		s.viewTick(now)
	case a.task != nil:
		s.runTask(*a.task, now)
	case a.event != nil:
		s.applyEvent(*a.event, now)
	}
}

func (s *Session) clockTick(now time.Time) {
	if s.status == StatusExpired {
		return
	}
	if s.expiry.Warn(now) {
		s.notify(now, ReasonExpiryWarning, false)
	}
	s.emitCountdown(now)
}

func (s *Session) emitCountdown(now time.Time) {
	s.emit(now, Update{Type: UpdateCountdown, Countdown: &Countdown{
		RemainingSeconds: int64(s.expiry.Remaining(now) / time.Second),
		DurationSeconds:  int64(s.expiry.Period() / time.Second),
	}})
}

func (s *Session) viewTick(now time.Time) {
	cur := s.arbiter.Active()
	if cur == nil || s.status == StatusExpired || !cur.tick() {
		return
	}
	if !s.opts.Output.Emit(cur.Kind()) {
		return
	}
	switch cur.Kind() {
	case ViewTerminal:
		cur.append(now, EntryOutput, terminalNoiseLine(cur.ticks))
	case ViewFramebuffer:
		cur.append(now, EntryOutput, frameLine(cur.ticks, now))
	}
}

func (s *Session) applyEvent(ev event, now time.Time) {
	if s.status == StatusExpired {
		return
	}
	fault := ev.fault
	if ev.kind == evSample {
		if ev.err != nil {
			fault = FaultLost
		}
		if ev.sample != nil {
			s.latest = ev.sample
			s.lastActivity = now
			s.emit(now, Update{Type: UpdateQuality, Quality: &QualityInfo{
				LatencyMs: ev.sample.LatencyMs(),
				Tier:      ev.sample.Tier,
			}})
		}
	}
	s.applyFault(fault, now)
}

// applyFault applies a fault signal. Faults only affect an active session.
func (s *Session) applyFault(f Fault, now time.Time) {
	if s.status != StatusActive {
		return
	}
	switch f {
	case FaultDegraded:
		s.setStatus(StatusDegraded)
		s.notify(now, ReasonDegraded, false)
	case FaultLost:
		s.beginReconnect(now, ReasonConnectionLost, s.opts.AutoReconnectDelay)
	}
}

// beginReconnect enters reconnecting and arms the fixed reconnect timer.
func (s *Session) beginReconnect(now time.Time, reason Reason, delay time.Duration) {
	s.setStatus(StatusReconnecting)
	s.reconnectGen++
	s.reconnectAt = now.Add(delay)
	s.sched.schedule(task{at: s.reconnectAt, kind: taskReconnect, gen: s.reconnectGen})
	s.arbiter.Interrupt(now, statusMessage(reason))
	s.notify(now, reason, false)
}

// hastenReconnect handles a manual reconnect while one is already in flight.
// The pending reconnect is replaced when the manual delay completes sooner;
// it is never pushed later.
func (s *Session) hastenReconnect(now time.Time) {
	at := now.Add(s.opts.ManualReconnectDelay)
	if !at.Before(s.reconnectAt) {
		return
	}
	s.reconnectGen++
	s.reconnectAt = at
	s.sched.schedule(task{at: at, kind: taskReconnect, gen: s.reconnectGen})
	s.notify(now, ReasonManualReconnect, false)
}

func (s *Session) runTask(t task, now time.Time) {
	switch t.kind {
	case taskReconnect:
		if s.status != StatusReconnecting || t.gen != s.reconnectGen {
			return
		}
		s.setStatus(StatusActive)
		s.lastActivity = now
		s.arbiter.Reconnected(now)
		s.notify(now, ReasonReconnected, false)

	case taskConnected:
		if v := s.arbiter.View(t.view); v != nil {
			v.connected(now, t.gen)
		}

	case taskResponse:
		v := s.arbiter.View(t.view)
		if v == nil || !v.active || v.gen != t.gen {
			return
		}
		if t.clear {
			v.wipe()
			return
		}
		for _, line := range t.lines {
			v.append(now, EntryOutput, line)
		}
	}
}

func (s *Session) selectView(kind ViewKind, now time.Time) {
	v, changed := s.arbiter.Select(kind, now)
	if !changed {
		return
	}
	log.Printf("[session] %s: view %s selected", s.desc.ID, kind)
	if v != nil {
		s.sched.schedule(task{at: now.Add(v.opts.ConnectDelay), kind: taskConnected, view: v.kind, gen: v.gen})
	}
}

// teardown cancels everything the session has pending. No task or ticker
// fires for the session afterwards.
func (s *Session) teardown(now time.Time, reason Reason) {
	s.ended = true
	s.endedAt = now
	s.reconnectGen++
	s.sched.reset()
	s.stopTimer()
	s.arbiter.Suspend()
	if s.clockTicker != nil {
		s.clockTicker.Stop()
		s.clockTicker = nil
	}
	s.notify(now, reason, false)
}

func (s *Session) setStatus(to Status) {
	if s.status == to {
		return
	}
	log.Printf("[session] %s: %s -> %s", s.desc.ID, s.status, to)
	s.status = to
}

func (s *Session) notify(now time.Time, reason Reason, persistent bool) {
	s.emit(now, Update{Type: UpdateStatus, Status: &StatusChange{
		Status:     s.status,
		Reason:     reason,
		Message:    statusMessage(reason),
		Persistent: persistent,
	}})
}

// collectDeltas emits a log update for every view whose log changed.
func (s *Session) collectDeltas(now time.Time) {
	for _, kind := range []ViewKind{ViewTerminal, ViewFramebuffer} {
		if d := s.arbiter.View(kind).delta(); d != nil {
			s.emit(now, Update{Type: UpdateLog, Log: d})
		}
	}
}
