package playground_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/internal/playground"
	"github.com/kiranshivaraju/keygate/internal/session"
	"github.com/kiranshivaraju/keygate/internal/store"
	"github.com/kiranshivaraju/keygate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

// memRepo is an in-memory keys.Repository.
type memRepo struct {
	keys    map[uuid.UUID]*models.APIKey
	findErr error
	touched []uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{keys: map[uuid.UUID]*models.APIKey{}}
}

func (m *memRepo) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *memRepo) ListAPIKeys(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) GetAPIKeyBySecret(_ context.Context, secret string) (*models.APIKey, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, k := range m.keys {
		if k.Secret == secret {
			cp := *k
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memRepo) RenameAPIKey(_ context.Context, id, userID uuid.UUID, name string) error {
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return store.ErrNotFound
	}
	k.Name = name
	return nil
}

func (m *memRepo) DeleteAPIKey(_ context.Context, id, userID uuid.UUID) error {
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *memRepo) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.touched = append(m.touched, id)
	return nil
}

type memStorage struct {
	values map[string]string
}

func (m *memStorage) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStorage) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStorage) Remove(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

type noSessions struct{}

func (noSessions) SessionFromRequest(_ *http.Request) (*models.AuthSession, bool) {
	return nil, false
}

// --- helpers ---

func newClient(repo *memRepo) *keys.Client {
	return keys.NewClient(repo,
		keys.WithGenerator(func() (string, error) { return "sk_abc123abc123abc123abc123abc123ab", nil }),
		keys.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

// navigate replays the cookies written in rec onto a request for path and
// runs it through the guard.
func navigate(t *testing.T, rec *httptest.ResponseRecorder, path string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			req.AddCookie(c)
		}
	}
	g := guard.New(noSessions{}, guard.Options{})
	out := httptest.NewRecorder()
	g.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(out, req)
	return out.Code
}

// ========================================
// End-to-end scenarios
// ========================================

func TestValidate_CreatedKeyUnlocksProtectedPage(t *testing.T) {
	repo := newMemRepo()
	client := newClient(repo)
	ctx := context.Background()

	created, err := client.Create(ctx, uuid.New(), "Prod")
	require.NoError(t, err)

	found, err := client.FindBySecret(ctx, created.Secret)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	rec := httptest.NewRecorder()
	local := &memStorage{values: map[string]string{}}
	sess := session.New(local, rec, session.CookieOptions{})

	res, err := playground.NewFlow(client).Validate(ctx, "  "+created.Secret+"  ", sess)
	require.NoError(t, err)
	assert.Equal(t, "/playground/protected", res.Redirect)
	assert.Equal(t, created.ID, res.KeyID)
	assert.Equal(t, created.Secret, local.values[session.LocalKey])
	assert.Equal(t, []uuid.UUID{created.ID}, repo.touched)

	assert.Equal(t, http.StatusOK, navigate(t, rec, "/playground/protected"))
}

func TestValidate_UnknownKeyLeavesSessionUntouched(t *testing.T) {
	repo := newMemRepo()
	client := newClient(repo)

	rec := httptest.NewRecorder()
	local := &memStorage{values: map[string]string{}}
	sess := session.New(local, rec, session.CookieOptions{})

	res, err := playground.NewFlow(client).Validate(context.Background(), "not-a-real-key", sess)
	assert.ErrorIs(t, err, playground.ErrInvalidKey)
	assert.Nil(t, res)
	assert.Empty(t, local.values)
	assert.Empty(t, rec.Result().Cookies())

	assert.Equal(t, http.StatusTemporaryRedirect, navigate(t, rec, "/playground/protected"))
}

// ========================================
// Validate edge cases
// ========================================

func TestValidate_EmptyCandidate(t *testing.T) {
	flow := playground.NewFlow(newClient(newMemRepo()))
	sess := session.New(&memStorage{values: map[string]string{}}, httptest.NewRecorder(), session.CookieOptions{})

	_, err := flow.Validate(context.Background(), "   ", sess)
	assert.ErrorIs(t, err, keys.ErrValidation)
}

func TestValidate_StoreFailureIsReportedAsInvalidKey(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("connection reset")
	flow := playground.NewFlow(newClient(repo))
	local := &memStorage{values: map[string]string{}}
	sess := session.New(local, httptest.NewRecorder(), session.CookieOptions{})

	_, err := flow.Validate(context.Background(), "sk_"+strings.Repeat("w", 32), sess)
	assert.ErrorIs(t, err, playground.ErrInvalidKey)
	assert.NotContains(t, err.Error(), "connection reset")
	assert.Empty(t, local.values)
}

func TestForget_ClearsBothMirrors(t *testing.T) {
	repo := newMemRepo()
	client := newClient(repo)
	ctx := context.Background()
	created, err := client.Create(ctx, uuid.New(), "Prod")
	require.NoError(t, err)

	local := &memStorage{values: map[string]string{}}
	flow := playground.NewFlow(client)
	_, err = flow.Validate(ctx, created.Secret, session.New(local, httptest.NewRecorder(), session.CookieOptions{}))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, flow.Forget(ctx, session.New(local, rec, session.CookieOptions{})))
	assert.Empty(t, local.values)
	assert.Equal(t, http.StatusTemporaryRedirect, navigate(t, rec, "/playground/protected"))
}

func TestValidate_DeletedKeyCookieStillPassesGuard(t *testing.T) {
	repo := newMemRepo()
	client := newClient(repo)
	ctx := context.Background()
	owner := uuid.New()
	created, err := client.Create(ctx, owner, "Prod")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	_, err = playground.NewFlow(client).Validate(ctx, created.Secret,
		session.New(&memStorage{values: map[string]string{}}, rec, session.CookieOptions{}))
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, owner, created.ID))

	// Without revalidation the guard trusts cookie presence.
	assert.Equal(t, http.StatusOK, navigate(t, rec, "/playground/protected"))
}
