// Package handler holds the HTTP handlers. Each constructor takes the narrow
// interface it needs and returns an http.HandlerFunc.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/keygate/internal/api/middleware"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
		return false
	}
	return true
}

// currentUser returns the signed-in user id the guard attached to r.
func currentUser(r *http.Request) (uuid.UUID, bool) {
	s, ok := guard.SessionFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	return s.UserID, true
}

// writeKeyError maps key store failures onto HTTP responses.
func writeKeyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, keys.ErrAuthRequired):
		response.Error(w, http.StatusUnauthorized, response.CodeAuthRequired, "Sign in to continue", nil)
	case errors.Is(err, keys.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "API key not found", nil)
	case errors.Is(err, keys.ErrValidation):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
	default:
		slog.Error("api key operation failed", "error", err, "request_id", mw.GetRequestID(r))
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
	}
}

func mask(secret string) string {
	k := models.APIKey{Secret: secret}
	return k.Masked()
}
