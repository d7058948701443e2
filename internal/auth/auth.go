// Package auth signs users in with email and password and keeps their
// sessions in the cache. The route guard only asks it whether a request
// carries a live session.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/cache"
	"github.com/kiranshivaraju/keygate/internal/metrics"
	"github.com/kiranshivaraju/keygate/internal/store"
	"github.com/kiranshivaraju/keygate/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CookieName carries the opaque session token.
	CookieName = "auth_session"

	minPasswordLen = 8
	tokenBytes     = 32
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrUserExists         = errors.New("user already exists")
)

// UserStore is the subset of store.Store the provider needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Options configures a Provider.
type Options struct {
	ResetSecret string
	SessionTTL  time.Duration
	ResetTTL    time.Duration
	Mailer      Mailer
	BcryptCost  int
	Now         func() time.Time
}

// Provider issues and resolves authentication sessions.
type Provider struct {
	users       UserStore
	cache       cache.Cache
	mailer      Mailer
	resetSecret []byte
	sessionTTL  time.Duration
	resetTTL    time.Duration
	cost        int
	now         func() time.Time
}

// NewProvider creates a Provider. Zero options fall back to defaults.
func NewProvider(users UserStore, c cache.Cache, opts Options) *Provider {
	p := &Provider{
		users:       users,
		cache:       c,
		mailer:      opts.Mailer,
		resetSecret: []byte(opts.ResetSecret),
		sessionTTL:  opts.SessionTTL,
		resetTTL:    opts.ResetTTL,
		cost:        opts.BcryptCost,
		now:         opts.Now,
	}
	if p.mailer == nil {
		p.mailer = LogMailer{}
	}
	if p.sessionTTL <= 0 {
		p.sessionTTL = 24 * time.Hour
	}
	if p.resetTTL <= 0 {
		p.resetTTL = time.Hour
	}
	if p.cost == 0 {
		p.cost = bcrypt.DefaultCost
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// cachedSession is the cache representation of an AuthSession.
type cachedSession struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateUser registers a new account.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := p.hash(password)
	if err != nil {
		return nil, err
	}
	now := p.now()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// SignInWithPassword checks the credentials and opens a new session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	u, err := p.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		metrics.SignIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		metrics.SignIns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		metrics.SignIns.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	s := &models.AuthSession{
		Token:     token,
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: p.now().Add(p.sessionTTL),
	}
	cs := cachedSession{UserID: s.UserID, Email: s.Email, ExpiresAt: s.ExpiresAt}
	if err := cache.SetJSON(ctx, p.cache, cache.AuthSessionKey(token), cs, p.sessionTTL); err != nil {
		metrics.SignIns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store session: %w", err)
	}
	metrics.SignIns.WithLabelValues("ok").Inc()
	slog.Info("user signed in", "user_id", u.ID)
	return s, nil
}

// Session resolves a session token. Unknown and expired tokens return ErrNoSession.
func (p *Provider) Session(ctx context.Context, token string) (*models.AuthSession, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	cs, ok, err := cache.GetJSON[cachedSession](ctx, p.cache, cache.AuthSessionKey(token))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	s := &models.AuthSession{Token: token, UserID: cs.UserID, Email: cs.Email, ExpiresAt: cs.ExpiresAt}
	if s.Expired(p.now()) {
		return nil, ErrNoSession
	}
	return s, nil
}

// SessionFromRequest resolves the session named by the request's auth cookie.
// Lookup failures count as no session.
func (p *Provider) SessionFromRequest(r *http.Request) (*models.AuthSession, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	s, err := p.Session(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			slog.Warn("auth session lookup failed", "error", err)
		}
		return nil, false
	}
	return s, true
}

// GetUser returns the user owning the session token.
func (p *Provider) GetUser(ctx context.Context, token string) (*models.User, error) {
	s, err := p.Session(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := p.users.GetUserByID(ctx, s.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SignOut ends the session. Signing out an unknown token is not an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := p.cache.Delete(ctx, cache.AuthSessionKey(token)); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (p *Provider) hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, s *models.AuthSession, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(1, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the raw session token from the auth cookie.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
