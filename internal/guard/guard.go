// Package guard decides, for every inbound request, whether it may proceed
// or must be redirected to sign in or to the playground entry.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/internal/metrics"
	"github.com/kiranshivaraju/keygate/internal/session"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

const (
	DashboardPrefix = "/dashboards"
	ProtectedPrefix = "/playground/protected"

	LoginPath      = "/login"
	PlaygroundPath = "/playground"
)

// Decision is the outcome of evaluating a request.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectPlayground
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectPlayground:
		return "redirect_playground"
	default:
		return "unknown"
	}
}

// Target is the path a redirect decision points at. Allow has none.
func (d Decision) Target() string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectPlayground:
		return PlaygroundPath
	default:
		return ""
	}
}

// Decide applies the access rules in order. Prefixes are matched as plain
// string prefixes, so "/dashboardsX" is guarded too.
func Decide(path string, authenticated, hasKey bool) Decision {
	if strings.HasPrefix(path, DashboardPrefix) && !authenticated {
		return RedirectLogin
	}
	if strings.HasPrefix(path, ProtectedPrefix) && !hasKey {
		return RedirectPlayground
	}
	return Allow
}

// SessionSource resolves the auth session carried by a request.
type SessionSource interface {
	SessionFromRequest(r *http.Request) (*models.AuthSession, bool)
}

// KeyFinder looks up a key by its secret.
type KeyFinder interface {
	FindBySecret(ctx context.Context, secret string) (*models.APIKey, error)
}

// Options configures a Guard.
type Options struct {
	// Revalidate checks the api_key cookie against the key store on
	// protected playground paths. Requires Keys.
	Revalidate bool
	Keys       KeyFinder
	Cookie     session.CookieOptions
}

// Guard is the route guard middleware.
type Guard struct {
	sessions SessionSource
	opts     Options
}

// New creates a Guard.
func New(sessions SessionSource, opts Options) *Guard {
	return &Guard{sessions: sessions, opts: opts}
}

// Handler wraps next with the access rules. The auth session is resolved
// only for dashboard paths; allowed dashboard requests carry it in their
// context.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var authSession *models.AuthSession
		var authenticated bool
		if strings.HasPrefix(r.URL.Path, DashboardPrefix) {
			authSession, authenticated = g.sessions.SessionFromRequest(r)
		}
		secret, hasKey := session.CookieSecret(r)

		if hasKey && g.opts.Revalidate && strings.HasPrefix(r.URL.Path, ProtectedPrefix) {
			hasKey = g.revalidate(r.Context(), w, secret)
		}

		d := Decide(r.URL.Path, authenticated, hasKey)
		metrics.GuardDecisions.WithLabelValues(d.String()).Inc()

		if d != Allow {
			slog.Debug("guard redirect", "path", r.URL.Path, "decision", d.String())
			http.Redirect(w, r, redirectURL(d.Target(), r), http.StatusTemporaryRedirect)
			return
		}

		if authenticated {
			r = r.WithContext(WithSession(r.Context(), authSession))
		}
		next.ServeHTTP(w, r)
	})
}

// revalidate reports whether the cookie secret still names a stored key.
// A key that no longer exists has its cookie cleared. Lookup failures deny
// the request but leave the cookie in place.
func (g *Guard) revalidate(ctx context.Context, w http.ResponseWriter, secret string) bool {
	if g.opts.Keys == nil {
		return true
	}
	_, err := g.opts.Keys.FindBySecret(ctx, secret)
	switch {
	case err == nil:
		return true
	case errors.Is(err, keys.ErrNotFound):
		session.ClearCookie(w, g.opts.Cookie)
	default:
		slog.Warn("guard key revalidation failed", "error", err)
	}
	return false
}

// redirectURL keeps the original query string on the redirect target.
func redirectURL(target string, r *http.Request) string {
	if r.URL.RawQuery == "" {
		return target
	}
	return target + "?" + r.URL.RawQuery
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the auth session.
func WithSession(ctx context.Context, s *models.AuthSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the auth session the guard attached to the request.
func SessionFromContext(ctx context.Context) (*models.AuthSession, bool) {
	s, ok := ctx.Value(sessionKey{}).(*models.AuthSession)
	return s, ok && s != nil
}
