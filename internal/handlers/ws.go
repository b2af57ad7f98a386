package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gluk-w/claworc/remote-access/internal/session"
)

// HeartbeatInterval is how often an idle update stream sends a heartbeat.
var HeartbeatInterval = 5 * time.Second

// wsWriteTimeout bounds a single frame write to a slow client.
const wsWriteTimeout = 10 * time.Second

type wsMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Session   *session.Info   `json:"session,omitempty"`
	Update    *session.Update `json:"update,omitempty"`
}

// SessionWS streams a session's updates over a WebSocket. The first frame
// is a session_info snapshot, followed by the retained status history and
// then live updates. A session_ended frame is sent before the socket closes
// because the session ended.
func SessionWS(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	if Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Notification hub not initialized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] accept failed for session %s: %v", s.ID(), err)
		return
	}
	defer conn.CloseNow()

	sub, history := Hub.Subscribe(s.ID())
	defer sub.Close()

	// The client never sends anything we act on; CloseRead handles control
	// frames and cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	info := s.Snapshot()
	if err := writeWS(ctx, conn, wsMessage{Type: "session_info", Timestamp: time.Now(), Session: &info}); err != nil {
		return
	}
	for i := range history {
		if err := writeWS(ctx, conn, wsMessage{Type: "update", Timestamp: history[i].Timestamp, Update: &history[i]}); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, open := <-sub.C:
			if !open {
				endStream(ctx, conn, s)
				return
			}
			if err := writeWS(ctx, conn, wsMessage{Type: "update", Timestamp: u.Timestamp, Update: &u}); err != nil {
				return
			}
		case <-s.Done():
			if !drainUpdates(ctx, conn, sub.C) {
				return
			}
			endStream(ctx, conn, s)
			return
		case <-heartbeat.C:
			if err := writeWS(ctx, conn, wsMessage{Type: "heartbeat", Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

// drainUpdates forwards updates the hub queued before the session went
// away. It reports false if the client could not be written to.
func drainUpdates(ctx context.Context, conn *websocket.Conn, c <-chan session.Update) bool {
	for {
		select {
		case u, open := <-c:
			if !open {
				return true
			}
			if err := writeWS(ctx, conn, wsMessage{Type: "update", Timestamp: u.Timestamp, Update: &u}); err != nil {
				return false
			}
		default:
			return true
		}
	}
}

func endStream(ctx context.Context, conn *websocket.Conn, s *session.Session) {
	info := s.Snapshot()
	if err := writeWS(ctx, conn, wsMessage{Type: "session_ended", Timestamp: time.Now(), Session: &info}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func writeWS(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
