package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gluk-w/claworc/remote-access/internal/auth"
	"github.com/gluk-w/claworc/remote-access/internal/metrics"
	"github.com/gluk-w/claworc/remote-access/internal/notify"
	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/gluk-w/claworc/remote-access/internal/sessionaudit"
	"github.com/go-chi/chi/v5"
)

// Set from main.go during init.
var (
	Sessions *session.Manager
	Hub      *notify.Hub
	AuditLog *sessionaudit.Auditor
	Metrics  *metrics.Recorder
	// Tokens is nil when authentication is disabled.
	Tokens *auth.TokenIssuer
	// TokenGrace keeps tokens valid past expiry so an expired session can
	// still be inspected, extended or ended.
	TokenGrace time.Duration
)

// Routes registers the session API on r, which is mounted at /api/v1.
func Routes(r chi.Router) {
	r.Post("/sessions", OpenSession)
	r.Get("/sessions", ListSessions)
	r.Get("/server-logs", GetServerLogs)

	r.Route("/sessions/{id}", func(r chi.Router) {
		if Tokens != nil {
			r.Use(Tokens.RequireSessionToken)
		}
		r.Get("/", GetSession)
		r.Post("/extend", ExtendSession)
		r.Post("/end", EndSession)
		r.Post("/reconnect", ReconnectSession)
		r.Put("/view", SelectView)
		r.Post("/terminal/commands", SubmitCommand)
		r.Get("/terminal/log", GetTerminalLog)
		r.Post("/framebuffer/pointer", SendPointer)
		r.Get("/framebuffer/log", GetFramebufferLog)
		r.Get("/events", GetSessionEvents)
		r.Get("/ws", SessionWS)
	})
}

type openSessionRequest struct {
	ID              string `json:"id"`
	DeviceID        string `json:"device_id"`
	GatewayID       string `json:"gateway_id"`
	UserID          string `json:"user_id"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	DurationSeconds int64  `json:"duration_seconds"`
	InitialView     string `json:"initial_view"`
}

type sessionResponse struct {
	Session session.Info `json:"session"`
	Token   string       `json:"token,omitempty"`
}

func issueToken(info session.Info) (string, error) {
	if Tokens == nil {
		return "", nil
	}
	return Tokens.Issue(info.ID, info.DeviceID, info.UserID, info.ExpiresAt.Add(TokenGrace))
}

// OpenSession handles POST /api/v1/sessions.
func OpenSession(w http.ResponseWriter, r *http.Request) {
	if Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not initialized")
		return
	}

	var body openSessionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, "duration_seconds must not be negative")
		return
	}
	if body.DurationSeconds > math.MaxInt64/int64(time.Second) {
		writeError(w, http.StatusBadRequest, "duration_seconds too large")
		return
	}

	req := session.OpenRequest{
		ID:        body.ID,
		DeviceID:  body.DeviceID,
		GatewayID: body.GatewayID,
		UserID:    body.UserID,
		Endpoint:  session.Endpoint{Host: body.Host, Port: body.Port},
		Duration:  time.Duration(body.DurationSeconds) * time.Second,
	}
	if body.InitialView != "" {
		kind, ok := session.ParseViewKind(body.InitialView)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid initial_view")
			return
		}
		req.InitialView = kind
	}

	s, err := Sessions.Open(req)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	info := s.Snapshot()
	token, err := issueToken(info)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue session token")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: info, Token: token})
}

// ListSessions handles GET /api/v1/sessions.
// Query parameters:
//   - device_id, user_id (optional): exact match filters
//   - status (optional): one of the session statuses
func ListSessions(w http.ResponseWriter, r *http.Request) {
	if Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not initialized")
		return
	}

	q := r.URL.Query()
	f := session.Filter{
		DeviceID: q.Get("device_id"),
		UserID:   q.Get("user_id"),
	}
	if st := q.Get("status"); st != "" {
		f.Status = session.Status(st)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": Sessions.List(f),
	})
}

// GetSession handles GET /api/v1/sessions/{id}.
func GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// ExtendSession handles POST /api/v1/sessions/{id}/extend. Extending an
// expired session is declined with 409.
func ExtendSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	err := s.Extend(r.Context())
	recordCommand("extend", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	info := s.Snapshot()
	token, err := issueToken(info)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue session token")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: info, Token: token})
}

// EndSession handles POST /api/v1/sessions/{id}/end.
func EndSession(w http.ResponseWriter, r *http.Request) {
	if Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not initialized")
		return
	}
	err := Sessions.End(r.Context(), chi.URLParam(r, "id"))
	recordCommand("end", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// ReconnectSession handles POST /api/v1/sessions/{id}/reconnect.
func ReconnectSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	err := s.ManualReconnect(r.Context())
	recordCommand("reconnect", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

// SelectView handles PUT /api/v1/sessions/{id}/view with {"view": "..."}.
func SelectView(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		View string `json:"view"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	kind, valid := session.ParseViewKind(body.View)
	if !valid {
		writeError(w, http.StatusBadRequest, "Invalid view")
		return
	}
	err := s.SelectView(r.Context(), kind)
	recordCommand("select_view", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SubmitCommand handles POST /api/v1/sessions/{id}/terminal/commands.
// The response lines arrive asynchronously on the terminal log.
func SubmitCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Command string `json:"command"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	err := s.SubmitCommand(r.Context(), body.Command)
	recordCommand("terminal_command", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SendPointer handles POST /api/v1/sessions/{id}/framebuffer/pointer.
func SendPointer(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var p session.Pointer
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if p.Kind == "" {
		p.Kind = session.PointerTap
	}
	err := s.PointerEvent(r.Context(), p)
	recordCommand("pointer", err)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetTerminalLog handles GET /api/v1/sessions/{id}/terminal/log.
func GetTerminalLog(w http.ResponseWriter, r *http.Request) {
	writeViewLog(w, r, session.ViewTerminal)
}

// GetFramebufferLog handles GET /api/v1/sessions/{id}/framebuffer/log.
func GetFramebufferLog(w http.ResponseWriter, r *http.Request) {
	writeViewLog(w, r, session.ViewFramebuffer)
}

// writeViewLog returns the view's log. With ?since=N only entries with a
// sequence number above N are returned.
func writeViewLog(w http.ResponseWriter, r *http.Request, kind session.ViewKind) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	var since uint64
	if q := r.URL.Query().Get("since"); q != "" {
		n, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since")
			return
		}
		since = n
	}
	entries, err := s.Log(kind)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if since > 0 {
		i := 0
		for i < len(entries) && entries[i].Seq <= since {
			i++
		}
		entries = entries[i:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":    kind,
		"entries": entries,
	})
}

// GetSessionEvents handles GET /api/v1/sessions/{id}/events.
// Query parameters:
//   - event_type (optional): filter by event type
//   - limit (optional): entries per page (default 50, max 1000)
//   - offset (optional): pagination offset
func GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	if AuditLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Audit logging not initialized")
		return
	}

	opts := sessionaudit.QueryOptions{
		SessionID: chi.URLParam(r, "id"),
		EventType: strings.TrimSpace(r.URL.Query().Get("event_type")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = offset
	}

	result, err := AuditLog.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query session events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func recordCommand(command string, err error) {
	if Metrics == nil {
		return
	}
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRateLimited):
		result = metrics.ResultRateLimited
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrViewInactive):
		result = metrics.ResultDeclined
	default:
		result = metrics.ResultError
	}
	Metrics.CommandResult(command, result)
}
