package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	phishgate "github.com/tmorgan-sec/phishgate"
)

// DefaultCookieName is the session cookie consulted when GuardConfig leaves
// CookieName empty.
const DefaultCookieName = "pg_session"

type contextKey struct{ name string }

var authResultKey = &contextKey{"phishgate-auth-result"}

// GuardConfig tunes how the guard extracts tokens and answers rejections.
type GuardConfig struct {
	// CookieName is the session cookie to read. Defaults to DefaultCookieName.
	CookieName string

	// RedirectURL, when set, turns unauthenticated rejections into a 303
	// redirect instead of a bare 401. Permission denials stay 403.
	RedirectURL string

	// TrustForwardedFor reads the leftmost X-Forwarded-For entry as the
	// client IP. Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

// AuthResultFromContext returns the identity stamped by Guard, or nil when
// the request did not pass through it.
func AuthResultFromContext(ctx context.Context) *phishgate.AuthResult {
	result, _ := ctx.Value(authResultKey).(*phishgate.AuthResult)
	return result
}

// Guard returns middleware that rejects requests without a session meeting
// the given tier. On success the verified AuthResult is placed on the
// request context.
func Guard(engine *phishgate.Engine, tier phishgate.Tier, cfg GuardConfig) func(http.Handler) http.Handler {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r, cookieName)
			if token == "" {
				reject(w, r, cfg, http.StatusUnauthorized)
				return
			}

			ctx := phishgate.WithClientIP(r.Context(), clientIP(r, cfg))
			result, err := engine.Authorize(ctx, token, tier)
			if err != nil {
				reject(w, r, cfg, statusForError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authResultKey, result)))
		})
	}
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}

func clientIP(r *http.Request, cfg GuardConfig) string {
	if cfg.TrustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, phishgate.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, phishgate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func reject(w http.ResponseWriter, r *http.Request, cfg GuardConfig, status int) {
	if status == http.StatusUnauthorized && cfg.RedirectURL != "" {
		http.Redirect(w, r, cfg.RedirectURL, http.StatusSeeOther)
		return
	}
	http.Error(w, http.StatusText(status), status)
}
