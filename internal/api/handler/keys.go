package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

// KeyService is the key store client the dashboard handlers depend on.
type KeyService interface {
	List(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	Create(ctx context.Context, userID uuid.UUID, name string) (*models.APIKey, error)
	Rename(ctx context.Context, userID, id uuid.UUID, name string) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// KeyView is the dashboard representation of a key. Key holds the full
// secret so the owner can reveal and copy it.
type KeyView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	Masked    string     `json:"masked"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

func newKeyView(k *models.APIKey) KeyView {
	return KeyView{
		ID:        k.ID,
		Name:      k.Name,
		Key:       k.Secret,
		Masked:    k.Masked(),
		CreatedAt: k.CreatedAt,
		LastUsed:  k.LastUsedAt,
	}
}

type keyNameRequest struct {
	Name string `json:"name"`
}

// NewListKeysHandler returns an http.HandlerFunc for GET /dashboards/api-keys.
func NewListKeysHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := currentUser(r)

		list, err := svc.List(r.Context(), userID)
		if err != nil {
			writeKeyError(w, r, err)
			return
		}

		views := make([]KeyView, 0, len(list))
		for _, k := range list {
			views = append(views, newKeyView(k))
		}
		response.List(w, views, len(views))
	}
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /dashboards/api-keys.
func NewCreateKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := currentUser(r)

		var req keyNameRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		key, err := svc.Create(r.Context(), userID, req.Name)
		if err != nil {
			writeKeyError(w, r, err)
			return
		}
		response.Created(w, newKeyView(key))
	}
}

// NewRenameKeyHandler returns an http.HandlerFunc for PATCH /dashboards/api-keys/{keyID}.
func NewRenameKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := currentUser(r)
		keyID, ok := parseKeyID(w, r)
		if !ok {
			return
		}

		var req keyNameRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.Rename(r.Context(), userID, keyID, req.Name); err != nil {
			writeKeyError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"id": keyID, "renamed": true})
	}
}

// NewDeleteKeyHandler returns an http.HandlerFunc for DELETE /dashboards/api-keys/{keyID}.
func NewDeleteKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := currentUser(r)
		keyID, ok := parseKeyID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), userID, keyID); err != nil {
			writeKeyError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func parseKeyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "keyID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
