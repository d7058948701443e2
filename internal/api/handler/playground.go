package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/kiranshivaraju/keygate/internal/api/middleware"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/internal/playground"
	"github.com/kiranshivaraju/keygate/internal/session"
)

// Validator is the key validation flow the playground handlers depend on.
type Validator interface {
	Validate(ctx context.Context, candidate string, sess playground.SessionSaver) (*playground.Result, error)
	Forget(ctx context.Context, sess playground.SessionSaver) error
}

// SessionStores builds the per-request session store.
type SessionStores interface {
	For(w http.ResponseWriter, r *http.Request) *session.Store
}

// NewPlaygroundHandler returns an http.HandlerFunc for GET /playground.
func NewPlaygroundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, hasKey := session.CookieSecret(r)
		response.JSON(w, map[string]any{
			"has_key":   hasKey,
			"validate":  guard.PlaygroundPath + "/validate",
			"protected": guard.ProtectedPrefix,
		})
	}
}

// NewValidateHandler returns an http.HandlerFunc for POST /playground/validate.
func NewValidateHandler(v Validator, stores SessionStores) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := v.Validate(r.Context(), req.Key, stores.For(w, r))
		switch {
		case err == nil:
			response.JSON(w, res)
		case errors.Is(err, keys.ErrValidation):
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
		case errors.Is(err, playground.ErrInvalidKey):
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidAPIKey, "Invalid API key", nil)
		default:
			slog.Error("key validation failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
		}
	}
}

// NewGetSessionHandler returns an http.HandlerFunc for GET /playground/session.
// Only the masked key is ever returned.
func NewGetSessionHandler(stores SessionStores) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret, ok, err := stores.For(w, r).Get(r.Context())
		if err != nil {
			slog.Error("read validated key failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
			return
		}
		data := map[string]any{"present": ok}
		if ok {
			data["key"] = mask(secret)
		}
		response.JSON(w, data)
	}
}

// NewForgetSessionHandler returns an http.HandlerFunc for DELETE /playground/session.
func NewForgetSessionHandler(v Validator, stores SessionStores) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := v.Forget(r.Context(), stores.For(w, r)); err != nil {
			// The cookie is already cleared, so the guard locks the page again.
			slog.Warn("clear validated key failed", "error", err, "request_id", mw.GetRequestID(r))
		}
		response.JSON(w, map[string]any{"redirect": guard.PlaygroundPath})
	}
}

// NewProtectedHandler returns an http.HandlerFunc for GET /playground/protected.
// The guard has already checked the api_key cookie.
func NewProtectedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret, _ := session.CookieSecret(r)
		response.JSON(w, map[string]any{
			"message": "Access granted",
			"key":     mask(secret),
		})
	}
}
