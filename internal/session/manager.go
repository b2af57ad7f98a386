package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPort is the device port used when an OpenRequest leaves it unset.
const DefaultPort = 5555

// OpenRequest describes a session to open.
type OpenRequest struct {
	ID          string        `json:"id,omitempty"`
	DeviceID    string        `json:"device_id"`
	GatewayID   string        `json:"gateway_id,omitempty"`
	UserID      string        `json:"user_id,omitempty"`
	Endpoint    Endpoint      `json:"endpoint"`
	Duration    time.Duration `json:"-"`
	InitialView ViewKind      `json:"initial_view,omitempty"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Options is the template every session is created from.
	Options Options
	// MaxDuration caps requested session durations. Zero means no cap.
	MaxDuration time.Duration
	// ProbeFor builds a per-session probe. Nil uses Options.Probe.
	ProbeFor func(Endpoint) Probe
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	DeviceID string
	UserID   string
	Status   Status
}

// Manager owns the set of running sessions.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	listenersMu sync.Mutex
	listeners   []Listener
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.Options = cfg.Options.withDefaults()
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// OnUpdate registers a listener that receives the updates of every session
// opened afterwards.
func (m *Manager) OnUpdate(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

func (m *Manager) dispatch(u Update) {
	m.listenersMu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l(u)
	}
}

func (m *Manager) validate(req *OpenRequest) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}
	if req.Endpoint.Host == "" {
		return fmt.Errorf("%w: endpoint host is required", ErrInvalidRequest)
	}
	if req.Endpoint.Port == 0 {
		req.Endpoint.Port = DefaultPort
	}
	if req.Endpoint.Port < 1 || req.Endpoint.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidRequest, req.Endpoint.Port)
	}
	if req.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidRequest)
	}
	if req.Duration == 0 {
		req.Duration = m.cfg.Options.Duration
	}
	if m.cfg.MaxDuration > 0 && req.Duration > m.cfg.MaxDuration {
		req.Duration = m.cfg.MaxDuration
	}
	if req.InitialView != "" {
		if _, ok := ParseViewKind(string(req.InitialView)); !ok {
			return fmt.Errorf("%w: unknown view %q", ErrInvalidRequest, req.InitialView)
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return nil
}

// Open validates req, creates the session and starts it.
func (m *Manager) Open(req OpenRequest) (*Session, error) {
	if err := m.validate(&req); err != nil {
		return nil, err
	}

	opts := m.cfg.Options
	opts.Duration = req.Duration
	if req.InitialView != "" {
		opts.InitialView = req.InitialView
	}
	if m.cfg.ProbeFor != nil {
		opts.Probe = m.cfg.ProbeFor(req.Endpoint)
	}
	id := req.ID
	var s *Session
	opts.OnEnd = func(Info) { m.remove(id, s) }

	s = New(Descriptor{
		ID:        req.ID,
		DeviceID:  req.DeviceID,
		GatewayID: req.GatewayID,
		UserID:    req.UserID,
		Endpoint:  req.Endpoint,
	}, opts)
	s.OnUpdate(m.dispatch)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	s.Start()
	log.Printf("[session-mgr] opened session %s for device %s at %s", id, req.DeviceID, req.Endpoint.Address())
	return s, nil
}

func (m *Manager) remove(id string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id]; ok && cur == s {
		delete(m.sessions, id)
	}
}

// Get returns the running session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns snapshots of matching sessions, oldest first.
func (m *Manager) List(f Filter) []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		info := s.Snapshot()
		if f.DeviceID != "" && info.DeviceID != f.DeviceID {
			continue
		}
		if f.UserID != "" && info.UserID != f.UserID {
			continue
		}
		if f.Status != "" && info.Status != f.Status {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the number of running sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End ends and removes a session.
func (m *Manager) End(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.End(ctx); err != nil {
		return err
	}
	log.Printf("[session-mgr] ended session %s", id)
	return nil
}

// ReapExpired ends sessions that have been expired for at least retention
// without being ended by their operator. It returns how many were reaped.
func (m *Manager) ReapExpired(ctx context.Context, retention time.Duration) int {
	now := m.cfg.Options.Clock.Now()
	reaped := 0
	for _, info := range m.List(Filter{Status: StatusExpired}) {
		if info.ExpiredAt == nil || now.Sub(*info.ExpiredAt) < retention {
			continue
		}
		s, err := m.Get(info.ID)
		if err != nil {
			continue
		}
		if err := s.End(ctx); err != nil {
			log.Printf("[session-mgr] reap %s: %v", info.ID, err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		log.Printf("[session-mgr] reaped %d expired sessions", reaped)
	}
	return reaped
}

// StopAll shuts every session down and refuses new ones.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				log.Printf("[session-mgr] shutdown %s: %v", s.ID(), err)
			}
		}()
	}
	wg.Wait()
	log.Printf("[session-mgr] stopped %d sessions", len(all))
}
