// Package keys is the only path from the application to stored API keys.
// Every operation is scoped to the calling user except FindBySecret, which the
// playground uses to validate a submitted key.
package keys

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/metrics"
	"github.com/kiranshivaraju/keygate/internal/store"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

const (
	maxNameLen     = 100
	createAttempts = 3
)

// Repository is the subset of store.Store the client needs.
type Repository interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	GetAPIKeyBySecret(ctx context.Context, secret string) (*models.APIKey, error)
	RenameAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID, name string) error
	DeleteAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Client issues CRUD operations against the key store.
type Client struct {
	repo     Repository
	generate SecretGenerator
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithGenerator replaces the secret generator.
func WithGenerator(g SecretGenerator) Option {
	return func(c *Client) { c.generate = g }
}

// WithClock replaces the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a key store client backed by repo.
func NewClient(repo Repository, opts ...Option) *Client {
	c := &Client{
		repo:     repo,
		generate: GenerateSecret,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the user's keys, newest first.
func (c *Client) List(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthRequired
	}
	list, err := c.repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, &StoreError{Op: "list api keys", Err: err}
	}
	return list, nil
}

// Create generates a new secret and stores it under name for the user.
func (c *Client) Create(ctx context.Context, userID uuid.UUID, name string) (*models.APIKey, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthRequired
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		secret, err := c.generate()
		if err != nil {
			return nil, &StoreError{Op: "create api key", Err: err}
		}
		key := &models.APIKey{
			ID:        uuid.New(),
			UserID:    userID,
			Name:      name,
			Secret:    secret,
			CreatedAt: c.now().Truncate(time.Microsecond),
		}
		err = c.repo.CreateAPIKey(ctx, key)
		if err == nil {
			metrics.KeyOperations.WithLabelValues("create").Inc()
			slog.Info("api key created", "key_id", key.ID, "user_id", userID)
			return key, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) || attempt >= createAttempts {
			return nil, &StoreError{Op: "create api key", Err: err}
		}
		slog.Warn("api key secret collision, regenerating", "attempt", attempt)
	}
}

// Rename changes only the display name of a key owned by the user.
func (c *Client) Rename(ctx context.Context, userID, id uuid.UUID, name string) error {
	if userID == uuid.Nil {
		return ErrAuthRequired
	}
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if err := c.repo.RenameAPIKey(ctx, id, userID, name); err != nil {
		return mapStoreError("rename api key", err)
	}
	metrics.KeyOperations.WithLabelValues("rename").Inc()
	return nil
}

// Delete removes a key owned by the user. Deleting an absent key returns ErrNotFound.
func (c *Client) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrAuthRequired
	}
	if err := c.repo.DeleteAPIKey(ctx, id, userID); err != nil {
		return mapStoreError("delete api key", err)
	}
	metrics.KeyOperations.WithLabelValues("delete").Inc()
	slog.Info("api key deleted", "key_id", id, "user_id", userID)
	return nil
}

// FindBySecret looks up a key by its exact secret. Every miss returns the
// same ErrNotFound regardless of input shape. Candidates that could not have
// been generated never reach the store.
func (c *Client) FindBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	if !LooksLikeSecret(secret) {
		return nil, ErrNotFound
	}
	key, err := c.repo.GetAPIKeyBySecret(ctx, secret)
	if err != nil {
		return nil, mapStoreError("find api key", err)
	}
	return key, nil
}

// Touch records that a key was just used.
func (c *Client) Touch(ctx context.Context, id uuid.UUID) error {
	if err := c.repo.UpdateAPIKeyLastUsed(ctx, id); err != nil {
		return &StoreError{Op: "touch api key", Err: err}
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", validationError("name must be at most 100 characters")
	}
	return name, nil
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}
