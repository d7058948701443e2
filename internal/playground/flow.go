// Package playground implements the key validation flow: a submitted key is
// checked against the key store and, on a match, remembered in the device's
// session so the protected page becomes reachable.
package playground

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/internal/metrics"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

// ErrInvalidKey is the only failure reported for a key that cannot be used.
// It does not say whether the key never existed, was deleted, or could not
// be looked up.
var ErrInvalidKey = errors.New("invalid api key")

// Finder is the part of the key store the flow reads.
type Finder interface {
	FindBySecret(ctx context.Context, secret string) (*models.APIKey, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

// SessionSaver persists or clears the validated key.
type SessionSaver interface {
	Save(ctx context.Context, secret string) error
	Remove(ctx context.Context) error
}

// Result tells the caller where to go after a successful validation.
type Result struct {
	Redirect string    `json:"redirect"`
	KeyID    uuid.UUID `json:"key_id"`
}

// Flow validates candidate keys.
type Flow struct {
	keys Finder
}

// NewFlow creates a Flow.
func NewFlow(f Finder) *Flow {
	return &Flow{keys: f}
}

// Validate checks candidate and saves it into sess when it names a stored
// key. On any failure sess is left untouched.
func (f *Flow) Validate(ctx context.Context, candidate string, sess SessionSaver) (*Result, error) {
	secret := strings.TrimSpace(candidate)
	if secret == "" {
		metrics.KeyValidations.WithLabelValues("invalid_request").Inc()
		return nil, fmt.Errorf("%w: key is required", keys.ErrValidation)
	}

	key, err := f.keys.FindBySecret(ctx, secret)
	if err != nil {
		if !errors.Is(err, keys.ErrNotFound) {
			slog.Error("key validation lookup failed", "error", err)
		}
		metrics.KeyValidations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidKey
	}

	if err := sess.Save(ctx, key.Secret); err != nil {
		metrics.KeyValidations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save validated key: %w", err)
	}

	if err := f.keys.Touch(ctx, key.ID); err != nil {
		slog.Warn("failed to record key use", "key_id", key.ID, "error", err)
	}

	metrics.KeyValidations.WithLabelValues("valid").Inc()
	slog.Info("api key validated", "key_id", key.ID)
	return &Result{Redirect: guard.ProtectedPrefix, KeyID: key.ID}, nil
}

// Forget clears the validated key.
func (f *Flow) Forget(ctx context.Context, sess SessionSaver) error {
	return sess.Remove(ctx)
}
