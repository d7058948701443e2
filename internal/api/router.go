package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/keygate/internal/api/middleware"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/session"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Guard      *guard.Guard
	DeviceOpts session.CookieOptions

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	LoginPage     http.HandlerFunc
	Login         http.HandlerFunc
	Logout        http.HandlerFunc
	ResetPassword http.HandlerFunc
	ConfirmReset  http.HandlerFunc

	Dashboard http.HandlerFunc
	ListKeys  http.HandlerFunc
	CreateKey http.HandlerFunc
	RenameKey http.HandlerFunc
	DeleteKey http.HandlerFunc

	Playground    http.HandlerFunc
	ValidateKey   http.HandlerFunc
	GetSession    http.HandlerFunc
	ForgetSession http.HandlerFunc
	Protected     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Every request passes the route guard before reaching a handler.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(session.Device(deps.DeviceOpts))
	if deps.Guard != nil {
		r.Use(deps.Guard.Handler)
	}

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Sign-in
	r.Get("/login", orNotImplemented(deps.LoginPage))
	r.Post("/login", orNotImplemented(deps.Login))
	r.Post("/logout", orNotImplemented(deps.Logout))
	r.Post("/reset-password", orNotImplemented(deps.ResetPassword))
	r.Post("/reset-password/confirm", orNotImplemented(deps.ConfirmReset))

	// Dashboard, signed-in users only
	r.Route("/dashboards", func(r chi.Router) {
		r.Use(mw.RequireSession)

		r.Get("/", orNotImplemented(deps.Dashboard))
		r.Get("/api-keys", orNotImplemented(deps.ListKeys))
		r.Post("/api-keys", orNotImplemented(deps.CreateKey))
		r.Patch("/api-keys/{keyID}", orNotImplemented(deps.RenameKey))
		r.Delete("/api-keys/{keyID}", orNotImplemented(deps.DeleteKey))
	})

	// Playground
	r.Get("/playground", orNotImplemented(deps.Playground))
	r.Post("/playground/validate", orNotImplemented(deps.ValidateKey))
	r.Get("/playground/session", orNotImplemented(deps.GetSession))
	r.Delete("/playground/session", orNotImplemented(deps.ForgetSession))
	r.Get("/playground/protected", orNotImplemented(deps.Protected))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
