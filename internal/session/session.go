package session

import (
	"context"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Default session timings.
const (
	DefaultDuration             = time.Hour
	DefaultClockTick            = time.Second
	DefaultAutoReconnectDelay   = 3 * time.Second
	DefaultManualReconnectDelay = 2 * time.Second
)

// drainLimit bounds how many extra ready inputs one wake-up collects.
const drainLimit = 64

// inboxSize buffers sampler results and transport faults.
const inboxSize = 16

// Endpoint is the network address of the device behind a session.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Descriptor identifies a session and the device it targets. It is supplied
// by the caller when the session is opened and never changes.
type Descriptor struct {
	ID        string   `json:"id"`
	DeviceID  string   `json:"device_id"`
	GatewayID string   `json:"gateway_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Endpoint  Endpoint `json:"endpoint"`
}

// Options shape a session's timing and behavior. Zero fields take the
// values from DefaultOptions.
type Options struct {
	Clock clock.WithTicker

	// Duration is the initial session length.
	Duration time.Duration
	// ExtendBy is how far from now Extend pushes the expiry.
	ExtendBy time.Duration
	// ClockTick is the countdown tick period.
	ClockTick time.Duration

	SamplerInterval time.Duration
	Probe           Probe
	Faults          FaultPolicy

	AutoReconnectDelay   time.Duration
	ManualReconnectDelay time.Duration

	Output      OutputPolicy
	Terminal    ViewOptions
	Framebuffer ViewOptions
	InitialView ViewKind

	// CommandRate limits terminal command submission. Zero disables it.
	CommandRate  rate.Limit
	CommandBurst int

	// OnEnd runs once after the session has been torn down.
	OnEnd func(Info)
}

// DefaultOptions returns the standard session options.
func DefaultOptions() Options {
	return Options{
		Clock:                clock.RealClock{},
		Duration:             DefaultDuration,
		ExtendBy:             DefaultDuration,
		ClockTick:            DefaultClockTick,
		SamplerInterval:      DefaultSamplerInterval,
		Probe:                NewSyntheticProbe(),
		Faults:               RandomFaults{Degrade: DefaultDegradeProbability, Loss: DefaultLossProbability},
		AutoReconnectDelay:   DefaultAutoReconnectDelay,
		ManualReconnectDelay: DefaultManualReconnectDelay,
		Output:               RandomOutput{P: DefaultOutputProbability},
		Terminal:             DefaultTerminalOptions(),
		Framebuffer:          DefaultFramebufferOptions(),
		InitialView:          ViewTerminal,
		CommandRate:          2,
		CommandBurst:         5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	if o.Duration <= 0 {
		o.Duration = d.Duration
	}
	if o.ExtendBy <= 0 {
		o.ExtendBy = d.ExtendBy
	}
	if o.ClockTick <= 0 {
		o.ClockTick = d.ClockTick
	}
	if o.SamplerInterval <= 0 {
		o.SamplerInterval = d.SamplerInterval
	}
	if o.Probe == nil {
		o.Probe = d.Probe
	}
	if o.Faults == nil {
		o.Faults = d.Faults
	}
	if o.AutoReconnectDelay <= 0 {
		o.AutoReconnectDelay = d.AutoReconnectDelay
	}
	if o.ManualReconnectDelay <= 0 {
		o.ManualReconnectDelay = d.ManualReconnectDelay
	}
	if o.Output == nil {
		o.Output = d.Output
	}
	if o.Terminal == (ViewOptions{}) {
		o.Terminal = d.Terminal
	}
	if o.Framebuffer == (ViewOptions{}) {
		o.Framebuffer = d.Framebuffer
	}
	if _, ok := ParseViewKind(string(o.InitialView)); !ok {
		o.InitialView = d.InitialView
	}
	return o
}

// ViewInfo describes one sub-session in a snapshot.
type ViewInfo struct {
	Kind      ViewKind `json:"kind"`
	Active    bool     `json:"active"`
	Phase     Phase    `json:"phase"`
	LogLength int      `json:"log_length"`
}

// Info is a point-in-time snapshot of a session.
type Info struct {
	Descriptor
	Status           Status       `json:"status"`
	StartedAt        time.Time    `json:"started_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	LastActivity     time.Time    `json:"last_activity"`
	RemainingSeconds int64        `json:"remaining_seconds"`
	DurationSeconds  int64        `json:"duration_seconds"`
	WarningShown     bool         `json:"warning_shown"`
	Quality          *QualityInfo `json:"quality,omitempty"`
	ActiveView       ViewKind     `json:"active_view,omitempty"`
	Views            []ViewInfo   `json:"views"`
	ExpiredAt        *time.Time   `json:"expired_at,omitempty"`
	Ended            bool         `json:"ended"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
}

// Session is one remote-access session. Create it with New, register
// listeners with OnUpdate, then call Start.
type Session struct {
	desc    Descriptor
	opts    Options
	clock   clock.WithTicker
	sampler *Sampler
	limiter *rate.Limiter

	// mu guards the fields below. Only the loop goroutine writes them.
	mu           sync.RWMutex
	status       Status
	expiry       ExpiryClock
	lastActivity time.Time
	latest       *Sample
	arbiter      *Arbiter
	sched        scheduler
	reconnectGen uint64
	reconnectAt  time.Time
	expiredAt    time.Time
	ended        bool
	endedAt      time.Time

	listenersMu sync.Mutex
	listeners   []Listener

	commands chan command
	inbox    chan event
	done     chan struct{}

	ctx           context.Context
	cancel        context.CancelFunc
	samplerCancel context.CancelFunc
	samplerWG     sync.WaitGroup
	startOnce     sync.Once

	// Loop-owned; never touched outside run.
	clockTicker clock.Ticker
	timer       clock.Timer
	timerAt     time.Time
	pending     []Update
}

// New creates a session. It does not start any goroutines.
func New(desc Descriptor, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		desc:  desc,
		opts:  opts,
		clock: opts.Clock,
		sampler: &Sampler{
			Clock:    opts.Clock,
			Interval: opts.SamplerInterval,
			Probe:    opts.Probe,
			Faults:   opts.Faults,
		},
		status:   StatusActive,
		arbiter:  newArbiter(opts.Clock, opts.Terminal, opts.Framebuffer),
		commands: make(chan command),
		inbox:    make(chan event, inboxSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.CommandRate > 0 {
		burst := opts.CommandBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.CommandRate, burst)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.desc.ID }

// Descriptor returns the session identity.
func (s *Session) Descriptor() Descriptor { return s.desc }

// OnUpdate registers a listener. Listeners registered before Start receive
// the opening notification.
func (s *Session) OnUpdate(l Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// Start begins the session: the expiry clock starts counting, the initial
// view starts connecting and the sampler starts probing. Calling Start more
// than once has no effect.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		now := s.clock.Now()

		s.mu.Lock()
		s.expiry.Start(now, s.opts.Duration)
		s.lastActivity = now
		s.selectView(s.opts.InitialView, now)
		s.notify(now, ReasonOpened, false)
		s.collectDeltas(now)
		s.armTimer(now)
		s.mu.Unlock()

		s.clockTicker = s.clock.NewTicker(s.opts.ClockTick)

		samplerCtx, samplerCancel := context.WithCancel(s.ctx)
		s.samplerCancel = samplerCancel
		s.samplerWG.Add(1)
		go func() {
			defer s.samplerWG.Done()
			s.sampler.Run(samplerCtx, s.report)
		}()

		log.Printf("[session] %s opened for device %s (expires %s)",
			s.desc.ID, s.desc.DeviceID, now.Add(s.opts.Duration).Format(time.RFC3339))
		s.flush()
		go s.run()
	})
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Extend pushes the expiry to now plus the configured extension. It fails
// with an error matching ErrSessionExpired if the session already expired.
func (s *Session) Extend(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdExtend})
}

// End tears the session down. It returns after every timer has been stopped
// and the OnEnd callback has run. Ending an ended session returns
// ErrSessionEnded.
func (s *Session) End(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdEnd, reason: ReasonEnded})
}

// Shutdown is End with the shutdown reason, used when the server stops.
func (s *Session) Shutdown(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdEnd, reason: ReasonShutdown})
}

// ManualReconnect forces a reconnect cycle.
func (s *Session) ManualReconnect(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdReconnect})
}

// SelectView makes kind the active view.
func (s *Session) SelectView(ctx context.Context, kind ViewKind) error {
	return s.send(ctx, command{kind: cmdSelectView, view: kind})
}

// SubmitCommand sends a command line to the terminal view.
func (s *Session) SubmitCommand(ctx context.Context, text string) error {
	return s.send(ctx, command{kind: cmdSubmit, text: text})
}

// PointerEvent sends a pointer event to the framebuffer view.
func (s *Session) PointerEvent(ctx context.Context, p Pointer) error {
	return s.send(ctx, command{kind: cmdPointer, pointer: p})
}

// ReportFault feeds a fault measured by an external transport into the
// session. It is applied like a sampler fault.
func (s *Session) ReportFault(f Fault) error {
	if !s.post(event{at: s.clock.Now(), kind: evFault, fault: f}) {
		return ErrSessionEnded
	}
	return nil
}

// Sync returns once the loop has applied everything that was ready when it
// was called.
func (s *Session) Sync(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdSync})
}

// Snapshot returns the current session state. A session whose expiry time
// has passed reports StatusExpired even if the loop has not ticked yet.
func (s *Session) Snapshot() Info {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	remaining := s.expiry.Remaining(now)
	info := Info{
		Descriptor:       s.desc,
		Status:           s.status,
		StartedAt:        s.expiry.StartedAt(),
		ExpiresAt:        s.expiry.ExpiresAt(),
		LastActivity:     s.lastActivity,
		RemainingSeconds: int64(remaining / time.Second),
		DurationSeconds:  int64(s.expiry.Period() / time.Second),
		WarningShown:     s.expiry.Warned(),
		Ended:            s.ended,
	}
	if remaining == 0 {
		info.Status = StatusExpired
	}
	if s.latest != nil {
		info.Quality = &QualityInfo{LatencyMs: s.latest.LatencyMs(), Tier: s.latest.Tier}
	}
	if cur := s.arbiter.Active(); cur != nil {
		info.ActiveView = cur.Kind()
	}
	for _, kind := range []ViewKind{ViewTerminal, ViewFramebuffer} {
		v := s.arbiter.View(kind)
		info.Views = append(info.Views, ViewInfo{Kind: kind, Active: v.Active(), Phase: v.Phase(), LogLength: v.LogLen()})
	}
	if !s.expiredAt.IsZero() {
		t := s.expiredAt
		info.ExpiredAt = &t
	}
	if s.ended {
		t := s.endedAt
		info.EndedAt = &t
	}
	return info
}

// Log returns a copy of a view's log, oldest first.
func (s *Session) Log(kind ViewKind) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.arbiter.View(kind)
	if v == nil {
		return nil, ErrInvalidRequest
	}
	return v.Entries(), nil
}

type cmdKind int

const (
	cmdExtend cmdKind = iota
	cmdEnd
	cmdReconnect
	cmdSelectView
	cmdSubmit
	cmdPointer
	cmdSync
)

func (k cmdKind) String() string {
	switch k {
	case cmdExtend:
		return "extend"
	case cmdEnd:
		return "end"
	case cmdReconnect:
		return "reconnect"
	case cmdSelectView:
		return "select view"
	case cmdSubmit:
		return "submit command"
	case cmdPointer:
		return "send pointer event"
	case cmdSync:
		return "sync"
	default:
		return "unknown"
	}
}

type command struct {
	kind    cmdKind
	view    ViewKind
	text    string
	pointer Pointer
	reason  Reason
	reply   chan error
}

type eventKind int

const (
	evSample eventKind = iota
	evFault
)

type event struct {
	at     time.Time
	kind   eventKind
	sample *Sample
	fault  Fault
	err    error
}

func (s *Session) send(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	select {
	case s.commands <- c:
	case <-s.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) report(sample *Sample, fault Fault, err error) {
	at := s.clock.Now()
	if sample != nil {
		at = sample.At
	}
	s.post(event{at: at, kind: evSample, sample: sample, fault: fault, err: err})
}

// batch collects everything that became ready in one wake-up.
type batch struct {
	commands  []command
	events    []event
	ticks     []time.Time
	viewTicks []time.Time
}

func (s *Session) run() {
	for {
		var b batch
		s.wait(&b)
		s.drain(&b)
		if s.process(&b) {
			return
		}
	}
}

func (s *Session) wait(b *batch) {
	select {
	case c := <-s.commands:
		b.commands = append(b.commands, c)
	case ev := <-s.inbox:
		b.events = append(b.events, ev)
	case t := <-s.clockC():
		b.ticks = append(b.ticks, t)
	case t := <-s.arbiter.tickC():
		b.viewTicks = append(b.viewTicks, t)
	case <-s.timerC():
		s.timer, s.timerAt = nil, time.Time{}
	}
}

// drain collects inputs that are already ready without blocking.
func (s *Session) drain(b *batch) {
	for range drainLimit {
		select {
		case c := <-s.commands:
			b.commands = append(b.commands, c)
		case ev := <-s.inbox:
			b.events = append(b.events, ev)
		case t := <-s.clockC():
			b.ticks = append(b.ticks, t)
		case t := <-s.arbiter.tickC():
			b.viewTicks = append(b.viewTicks, t)
		case <-s.timerC():
			s.timer, s.timerAt = nil, time.Time{}
		default:
			return
		}
	}
}

func (s *Session) clockC() <-chan time.Time {
	if s.clockTicker == nil {
		return nil
	}
	return s.clockTicker.C()
}

func (s *Session) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C()
}

// armTimer keeps the single task timer aimed at the earliest pending task.
func (s *Session) armTimer(now time.Time) {
	next, ok := s.sched.next()
	if !ok {
		s.stopTimer()
		return
	}
	if s.timer != nil && next.Equal(s.timerAt) {
		return
	}
	s.stopTimer()
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	s.timer = s.clock.NewTimer(d)
	s.timerAt = next
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer, s.timerAt = nil, time.Time{}
	}
}

// emit queues an update for delivery after the state lock is released.
func (s *Session) emit(now time.Time, u Update) {
	u.SessionID = s.desc.ID
	u.DeviceID = s.desc.DeviceID
	u.Timestamp = now
	s.pending = append(s.pending, u)
}

// flush delivers queued updates to listeners. Must be called without mu.
func (s *Session) flush() {
	if len(s.pending) == 0 {
		return
	}
	updates := s.pending
	s.pending = nil

	s.listenersMu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, u := range updates {
		for _, l := range listeners {
			l(u)
		}
	}
}

// finish completes teardown after End was applied.
func (s *Session) finish() {
	s.cancel()
	s.samplerWG.Wait()
	close(s.done)
	log.Printf("[session] %s torn down", s.desc.ID)
	if s.opts.OnEnd != nil {
		s.opts.OnEnd(s.Snapshot())
	}
}
