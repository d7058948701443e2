// Package session holds the single validated API key of a device in two
// mirrors: a local persistent slot and the api_key cookie. Writes go through
// both; the route guard only ever reads the cookie.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// CookieName is the cookie mirror read by the route guard.
	CookieName = "api_key"
	// LocalKey is the key of the local persistent copy.
	LocalKey = "validated_api_key"
)

// Storage is a device-local persistent key/value slot.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// CookieOptions controls the cookie mirror. A zero MaxAge writes a session
// cookie with no expiry.
type CookieOptions struct {
	MaxAge time.Duration
	Secure bool
}

// Store writes the validated key through to both mirrors.
// Concurrent writers are last-write-wins.
type Store struct {
	local Storage
	w     http.ResponseWriter
	opts  CookieOptions
}

// New returns a Store bound to a local slot and the response that carries the cookie.
func New(local Storage, w http.ResponseWriter, opts CookieOptions) *Store {
	return &Store{local: local, w: w, opts: opts}
}

// NewServer returns a Store without local storage. Get always reports absent.
func NewServer(w http.ResponseWriter, opts CookieOptions) *Store {
	return &Store{w: w, opts: opts}
}

// Save persists secret locally and mirrors it into the cookie.
// The cookie is not written when the local write fails.
func (s *Store) Save(ctx context.Context, secret string) error {
	if s.local != nil {
		if err := s.local.Set(ctx, LocalKey, secret); err != nil {
			return fmt.Errorf("save validated key: %w", err)
		}
	}
	SetCookie(s.w, secret, s.opts)
	return nil
}

// Get reads the local copy.
func (s *Store) Get(ctx context.Context) (string, bool, error) {
	if s.local == nil {
		return "", false, nil
	}
	v, ok, err := s.local.Get(ctx, LocalKey)
	if err != nil {
		return "", false, fmt.Errorf("read validated key: %w", err)
	}
	return v, ok && v != "", nil
}

// Remove clears both mirrors. The cookie is always expired, even when the
// local delete fails.
func (s *Store) Remove(ctx context.Context) error {
	ClearCookie(s.w, s.opts)
	if s.local == nil {
		return nil
	}
	if err := s.local.Remove(ctx, LocalKey); err != nil {
		return fmt.Errorf("remove validated key: %w", err)
	}
	return nil
}

// CookieSecret returns the api_key cookie value carried by r.
func CookieSecret(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// SetCookie writes the api_key cookie for the whole site.
func SetCookie(w http.ResponseWriter, secret string, opts CookieOptions) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    secret,
		Path:     "/",
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge / time.Second)
		c.Expires = time.Now().Add(opts.MaxAge).UTC()
	}
	http.SetCookie(w, c)
}

// ClearCookie overwrites the api_key cookie with an already expired value.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(1, 0).UTC(),
		MaxAge:   -1,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
