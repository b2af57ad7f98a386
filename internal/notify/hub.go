// Package notify fans session updates out to live subscribers (WebSocket
// clients) and keeps a short history of status notifications per session.
package notify

import (
	"log"
	"sync"

	"github.com/gluk-w/claworc/remote-access/internal/session"
)

const (
	// recentSize is the number of status notifications kept per session.
	recentSize = 100
	// DefaultBuffer is the per-subscriber channel capacity.
	DefaultBuffer = 64
	// endedSize is the number of ended session ids remembered so that late
	// subscribers are closed instead of registered.
	endedSize = 1024
)

// statusRing is a fixed-size ring buffer of status updates for one session.
type statusRing struct {
	updates [recentSize]session.Update
	head    int // next write position
	count   int
}

func (r *statusRing) record(u session.Update) {
	r.updates[r.head] = u
	r.head = (r.head + 1) % recentSize
	if r.count < recentSize {
		r.count++
	}
}

// history returns updates oldest first.
func (r *statusRing) history() []session.Update {
	if r.count == 0 {
		return nil
	}
	result := make([]session.Update, r.count)
	if r.count < recentSize {
		copy(result, r.updates[:r.count])
	} else {
		n := copy(result, r.updates[r.head:])
		copy(result[n:], r.updates[:r.head])
	}
	return result
}

// Subscription receives updates for one session. C is closed when the
// session ends or the subscription is closed.
type Subscription struct {
	C <-chan session.Update

	ch        chan session.Update
	sessionID string
	hub       *Hub
	dropped   int
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub routes updates to per-session subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	recent map[string]*statusRing
	buffer int

	ended      map[string]struct{}
	endedOrder []string
}

// NewHub creates a hub whose subscribers buffer up to buffer updates.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		recent: make(map[string]*statusRing),
		buffer: buffer,
		ended:  make(map[string]struct{}),
	}
}

// Subscribe attaches to a session's updates and returns the status history
// recorded so far. The subscription of a session that already ended is
// returned closed.
func (h *Hub) Subscribe(sessionID string) (*Subscription, []session.Update) {
	ch := make(chan session.Update, h.buffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, gone := h.ended[sessionID]; gone {
		close(ch)
		return sub, nil
	}
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}

	var history []session.Update
	if r, ok := h.recent[sessionID]; ok {
		history = r.history()
	}
	return sub, history
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
}

// Publish delivers u to the session's subscribers without blocking. A
// subscriber whose buffer is full misses the update. When the session ends
// every subscriber is closed and the history is dropped.
func (h *Hub) Publish(u session.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ended(u) {
		h.markEnded(u.SessionID)
	} else if _, ok := h.ended[u.SessionID]; ok {
		// A reused id belongs to a new session.
		h.unmarkEnded(u.SessionID)
	}

	if u.Type == session.UpdateStatus {
		r, ok := h.recent[u.SessionID]
		if !ok {
			r = &statusRing{}
			h.recent[u.SessionID] = r
		}
		r.record(u)
	}

	for sub := range h.subs[u.SessionID] {
		select {
		case sub.ch <- u:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				log.Printf("[ws] subscriber of session %s is slow, %d updates dropped", u.SessionID, sub.dropped)
			}
		}
	}

	if ended(u) {
		for sub := range h.subs[u.SessionID] {
			close(sub.ch)
		}
		delete(h.subs, u.SessionID)
		delete(h.recent, u.SessionID)
	}
}

func (h *Hub) markEnded(sessionID string) {
	if _, ok := h.ended[sessionID]; ok {
		return
	}
	if len(h.endedOrder) >= endedSize {
		oldest := h.endedOrder[0]
		h.endedOrder = h.endedOrder[1:]
		delete(h.ended, oldest)
	}
	h.ended[sessionID] = struct{}{}
	h.endedOrder = append(h.endedOrder, sessionID)
}

func (h *Hub) unmarkEnded(sessionID string) {
	delete(h.ended, sessionID)
	for i, id := range h.endedOrder {
		if id == sessionID {
			h.endedOrder = append(h.endedOrder[:i], h.endedOrder[i+1:]...)
			return
		}
	}
}

// Recent returns the status history of a session, oldest first.
func (h *Hub) Recent(sessionID string) []session.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.recent[sessionID]; ok {
		return r.history()
	}
	return nil
}

// Subscribers returns the number of live subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func ended(u session.Update) bool {
	if u.Type != session.UpdateStatus || u.Status == nil {
		return false
	}
	return u.Status.Reason == session.ReasonEnded || u.Status.Reason == session.ReasonShutdown
}
