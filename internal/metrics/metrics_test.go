package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func status(reason session.Reason, st session.Status) session.Update {
	return session.Update{Type: session.UpdateStatus, Status: &session.StatusChange{Status: st, Reason: reason}}
}

func TestObserve(t *testing.T) {
	r := NewRecorder()
	r.Observe(status(session.ReasonOpened, session.StatusActive))
	r.Observe(status(session.ReasonOpened, session.StatusActive))
	r.Observe(status(session.ReasonConnectionLost, session.StatusReconnecting))
	r.Observe(status(session.ReasonEnded, session.StatusReconnecting))
	r.Observe(session.Update{Type: session.UpdateQuality, Quality: &session.QualityInfo{LatencyMs: 80, Tier: session.TierFair}})

	if got := testutil.ToFloat64(r.open); got != 1 {
		t.Errorf("sessions_open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.transitions.WithLabelValues("reconnecting", "connection_lost")); got != 1 {
		t.Errorf("connection_lost transitions = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.latency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.CommandResult("extend", ResultDeclined)

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`remote_access_commands_total{command="extend",result="declined"} 1`,
		"remote_access_sessions_open 0",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
