package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var now = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(testSecret, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return iss
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", nil); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestIssueParse(t *testing.T) {
	iss := newIssuer(t)
	raw, err := iss.Issue("sess-1", "dev-1", "alice", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.DeviceID != "dev-1" || claims.UserID != "alice" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	iss := newIssuer(t)
	expired, _ := iss.Issue("s", "d", "", now.Add(-time.Minute))

	other, _ := NewTokenIssuer("another-secret-of-enough-length", func() time.Time { return now })
	forged, _ := other.Issue("s", "d", "", now.Add(time.Hour))

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		SessionID:        "s",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{SessionID: "s"}).SignedString([]byte(testSecret))

	tests := []struct {
		name string
		raw  string
	}{
		{"expired", expired},
		{"wrong secret", forged},
		{"alg none", none},
		{"no expiry", noExp},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := iss.Parse(tt.raw); err != ErrInvalidToken {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestRequireSessionToken(t *testing.T) {
	iss := newIssuer(t)
	good, _ := iss.Issue("sess-1", "dev", "", now.Add(time.Hour))

	r := chi.NewRouter()
	r.With(iss.RequireSessionToken).Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
		}
		w.Write([]byte(claims.SessionID))
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"bearer", "/sessions/sess-1", "Bearer " + good, http.StatusOK},
		{"query", "/sessions/sess-1?token=" + good, "", http.StatusOK},
		{"missing", "/sessions/sess-1", "", http.StatusUnauthorized},
		{"not bearer", "/sessions/sess-1", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/sessions/sess-1", "Bearer nope", http.StatusUnauthorized},
		{"other session", "/sessions/sess-2", "Bearer " + good, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
