// Package auth issues and verifies the session-scoped tokens handed out when
// a remote-access session is opened.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const claimsKey contextKey = "session_claims"

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("missing session token")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims are the claims of a session token.
type Claims struct {
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
	UserID    string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	nowFn  func() time.Time
}

// NewTokenIssuer creates an issuer with the given signing secret.
func NewTokenIssuer(secret string, nowFn func() time.Time) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), nowFn: nowFn}, nil
}

// Issue signs a token for a session that is valid until expiresAt.
func (t *TokenIssuer) Issue(sessionID, deviceID, userID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		DeviceID:  deviceID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(t.nowFn()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.nowFn),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// tokenFromRequest reads a Bearer token, falling back to the token query
// parameter for WebSocket upgrades where browsers cannot set headers.
func tokenFromRequest(r *http.Request) (string, error) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if !strings.HasPrefix(authz, "Bearer ") {
			return "", ErrMissingToken
		}
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")), nil
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q, nil
	}
	return "", ErrMissingToken
}

// RequireSessionToken rejects requests without a valid token whose session
// id matches the {id} route parameter.
func (t *TokenIssuer) RequireSessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := tokenFromRequest(r)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		claims, err := t.Parse(raw)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		if id := chi.URLParam(r, "id"); id != "" && id != claims.SessionID {
			http.Error(w, `{"detail":"token does not grant access to this session"}`, http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by RequireSessionToken.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"detail":%q}`, detail)
}
