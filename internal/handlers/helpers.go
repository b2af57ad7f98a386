package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gluk-w/claworc/remote-access/internal/session"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionEnded):
		return http.StatusGone
	case errors.Is(err, session.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrViewInactive),
		errors.Is(err, session.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// lookupSession resolves the {id} route parameter. It writes the error
// response itself when the session cannot be served.
func lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not initialized")
		return nil, false
	}
	s, err := Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return s, true
}
