package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	mw "github.com/kiranshivaraju/keygate/internal/api/middleware"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/internal/auth"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/pkg/models"
)

// Authenticator is the authentication provider the auth handlers depend on.
type Authenticator interface {
	SessionFromRequest(r *http.Request) (*models.AuthSession, bool)
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignOut(ctx context.Context, token string) error
	GetUser(ctx context.Context, token string) (*models.User, error)
	SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error
	UpdateUserPassword(ctx context.Context, resetToken, newPassword string) error
}

// AuthOptions configures the auth handlers.
type AuthOptions struct {
	SecureCookies bool
	// BaseURL is the externally visible origin used in reset links.
	BaseURL string
}

// NewLoginPageHandler returns an http.HandlerFunc for GET /login. Signed-in
// users are sent on to the dashboard.
func NewLoginPageHandler(a Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.SessionFromRequest(r); ok {
			http.Redirect(w, r, guard.DashboardPrefix, http.StatusTemporaryRedirect)
			return
		}
		response.JSON(w, map[string]any{"authenticated": false})
	}
}

// NewLoginHandler returns an http.HandlerFunc for POST /login.
func NewLoginHandler(a Authenticator, opts AuthOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "email and password are required", nil)
			return
		}

		s, err := a.SignInWithPassword(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				response.Error(w, http.StatusUnauthorized, response.CodeInvalidCredentials, "Invalid email or password", nil)
				return
			}
			slog.Error("sign in failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
			return
		}

		auth.SetCookie(w, s, opts.SecureCookies)
		response.JSON(w, map[string]any{
			"user_id":    s.UserID,
			"email":      s.Email,
			"expires_at": s.ExpiresAt,
			"redirect":   guard.DashboardPrefix,
		})
	}
}

// NewLogoutHandler returns an http.HandlerFunc for POST /logout. The cookie
// is cleared even when the session could not be revoked.
func NewLogoutHandler(a Authenticator, opts AuthOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.SignOut(r.Context(), auth.TokenFromRequest(r)); err != nil {
			slog.Warn("sign out failed", "error", err, "request_id", mw.GetRequestID(r))
		}
		auth.ClearCookie(w, opts.SecureCookies)
		response.JSON(w, map[string]any{"redirect": guard.LoginPath})
	}
}

// NewResetPasswordHandler returns an http.HandlerFunc for POST /reset-password.
// The response is the same whether or not the address has an account.
func NewResetPasswordHandler(a Authenticator, opts AuthOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "email is required", nil)
			return
		}

		redirectTo := opts.BaseURL + "/reset-password/confirm"
		if err := a.SendPasswordResetEmail(r.Context(), req.Email, redirectTo); err != nil {
			slog.Error("password reset failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
			return
		}
		response.Accepted(w, map[string]any{
			"message": "If an account exists for that address, a reset link is on its way",
		})
	}
}

// NewConfirmResetHandler returns an http.HandlerFunc for POST /reset-password/confirm.
func NewConfirmResetHandler(a Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Token == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "token is required", nil)
			return
		}

		err := a.UpdateUserPassword(r.Context(), req.Token, req.Password)
		switch {
		case err == nil:
			response.JSON(w, map[string]any{"redirect": guard.LoginPath})
		case errors.Is(err, auth.ErrInvalidToken):
			response.Error(w, http.StatusBadRequest, response.CodeInvalidToken, "Reset link is invalid or has expired", nil)
		case errors.Is(err, auth.ErrWeakPassword):
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
		default:
			slog.Error("password update failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
		}
	}
}

// NewDashboardHandler returns an http.HandlerFunc for GET /dashboards.
func NewDashboardHandler(a Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.GetUser(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			if errors.Is(err, auth.ErrNoSession) {
				response.Error(w, http.StatusUnauthorized, response.CodeAuthRequired, "Sign in to continue", nil)
				return
			}
			slog.Error("load current user failed", "error", err, "request_id", mw.GetRequestID(r))
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Something went wrong, please try again", nil)
			return
		}
		response.JSON(w, map[string]any{
			"user": u,
			"links": map[string]string{
				"api_keys":   guard.DashboardPrefix + "/api-keys",
				"playground": guard.PlaygroundPath,
			},
		})
	}
}
