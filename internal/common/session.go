package common

import (
	"context"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

// Session headers set by the storefront gateway.
const (
	HeaderSessionID    = "X-Session-ID"
	HeaderUserID       = "X-User-ID"
	HeaderAccountClass = "X-Account-Class"
)

// Session identifies the shopper behind a request.
type Session struct {
	ID     string
	UserID string
	Class  pricing.AccountClass
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored on the context.
func SessionFrom(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// SessionMiddleware reads the session headers into the request context.
// When no session id is sent the user id doubles as the session.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := Session{
			ID:     strings.TrimSpace(r.Header.Get(HeaderSessionID)),
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Class:  pricing.ParseAccountClass(r.Header.Get(HeaderAccountClass)),
		}
		if s.ID == "" && s.UserID != "" {
			s.ID = "user-" + s.UserID
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireSession rejects requests without a session id.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := SessionFrom(r.Context()); !ok || s.ID == "" {
			JSONError(w, http.StatusBadRequest, CodeSessionRequired, "missing "+HeaderSessionID+" header", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without an authenticated user id.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := SessionFrom(r.Context()); !ok || s.UserID == "" {
			JSONError(w, http.StatusUnauthorized, CodeSessionRequired, "missing "+HeaderUserID+" header", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
