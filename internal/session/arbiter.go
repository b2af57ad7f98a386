package session

import (
	"math/rand/v2"
	"time"

	"k8s.io/utils/clock"
)

// DefaultOutputProbability is the chance that a ready view produces
// unsolicited output on a background tick.
const DefaultOutputProbability = 0.3

// OutputPolicy decides whether a background tick produces output.
type OutputPolicy interface {
	Emit(view ViewKind) bool
}

// OutputFunc adapts a function to OutputPolicy.
type OutputFunc func(ViewKind) bool

func (f OutputFunc) Emit(v ViewKind) bool { return f(v) }

// RandomOutput emits with a fixed probability per tick.
type RandomOutput struct {
	P float64
	// Float returns a value in [0,1). Nil uses math/rand/v2.
	Float func() float64
}

func (o RandomOutput) Emit(ViewKind) bool {
	draw := o.Float
	if draw == nil {
		draw = rand.Float64
	}
	return draw() < o.P
}

// Arbiter keeps exactly one sub-session active and owns the background
// ticker of whichever one that is.
type Arbiter struct {
	clock  clock.WithTicker
	views  map[ViewKind]*SubSession
	active ViewKind
	ticker clock.Ticker
}

func newArbiter(clk clock.WithTicker, terminal, framebuffer ViewOptions) *Arbiter {
	return &Arbiter{
		clock: clk,
		views: map[ViewKind]*SubSession{
			ViewTerminal:    newSubSession(ViewTerminal, terminal),
			ViewFramebuffer: newSubSession(ViewFramebuffer, framebuffer),
		},
	}
}

// Active returns the active sub-session, or nil before the first Select and
// after Suspend.
func (a *Arbiter) Active() *SubSession {
	if a.active == "" {
		return nil
	}
	return a.views[a.active]
}

// View returns the sub-session of the given kind.
func (a *Arbiter) View(kind ViewKind) *SubSession {
	return a.views[kind]
}

// Select activates kind and deactivates the other view. It returns the
// activated sub-session when it entered connecting and needs a connect task.
// Selecting the active view is a no-op.
func (a *Arbiter) Select(kind ViewKind, now time.Time) (connecting *SubSession, changed bool) {
	next, ok := a.views[kind]
	if !ok || a.active == kind {
		return nil, false
	}
	if cur := a.Active(); cur != nil {
		cur.deactivate()
	}
	a.stopTicker()
	a.active = kind
	if interval := next.opts.TickInterval; interval > 0 {
		a.ticker = a.clock.NewTicker(interval)
	}
	if next.activate(now) {
		return next, true
	}
	return nil, true
}

// Interrupt moves the active view back to connecting for a session-level
// reconnect. It returns the interrupted view, if any.
func (a *Arbiter) Interrupt(now time.Time, reason string) *SubSession {
	cur := a.Active()
	if cur == nil || !cur.interrupt(now, reason) {
		return nil
	}
	return cur
}

// Reconnected completes an Interrupt on the active view.
func (a *Arbiter) Reconnected(now time.Time) bool {
	cur := a.Active()
	if cur == nil || !cur.reconnecting {
		return false
	}
	return cur.connected(now, cur.gen)
}

// Suspend deactivates every view and stops the ticker.
func (a *Arbiter) Suspend() {
	if cur := a.Active(); cur != nil {
		cur.deactivate()
	}
	a.stopTicker()
	a.active = ""
}

// tickC is the active view's tick channel; nil (never ready) when no view
// is active.
func (a *Arbiter) tickC() <-chan time.Time {
	if a.ticker == nil {
		return nil
	}
	return a.ticker.C()
}

func (a *Arbiter) stopTicker() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
}
