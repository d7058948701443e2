package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthSession is proof of an authenticated identity, issued at sign-in.
type AuthSession struct {
	Token     string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
