package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a named bearer token owned by exactly one user.
// The secret is generated once at creation and never rotated.
type APIKey struct {
	ID         uuid.UUID  `db:"id"         json:"id"`
	UserID     uuid.UUID  `db:"user_id"    json:"-"`
	Name       string     `db:"name"       json:"name"`
	Secret     string     `db:"key"        json:"key"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used"  json:"last_used,omitempty"`
}

// Masked returns the secret with everything but the last four characters hidden.
func (k *APIKey) Masked() string {
	if len(k.Secret) <= 4 {
		return "•••••••••"
	}
	return "•••••••••" + k.Secret[len(k.Secret)-4:]
}
