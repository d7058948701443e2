// Package main is the entrypoint for the keygate server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/keygate/internal/api"
	"github.com/kiranshivaraju/keygate/internal/api/handler"
	"github.com/kiranshivaraju/keygate/internal/api/response"
	"github.com/kiranshivaraju/keygate/internal/auth"
	"github.com/kiranshivaraju/keygate/internal/cache"
	"github.com/kiranshivaraju/keygate/internal/config"
	"github.com/kiranshivaraju/keygate/internal/guard"
	"github.com/kiranshivaraju/keygate/internal/keys"
	"github.com/kiranshivaraju/keygate/internal/metrics"
	"github.com/kiranshivaraju/keygate/internal/playground"
	"github.com/kiranshivaraju/keygate/internal/session"
	"github.com/kiranshivaraju/keygate/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "revalidate_keys", cfg.Guard.RevalidateKeys)
	if cfg.IsProduction() && !cfg.Cookie.Secure {
		slog.Warn("COOKIE_SECURE is off in production, cookies will be sent over plain http")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and auth provider
	pgStore := store.NewPostgresStore(pool)
	provider := newAuthProvider(cfg, pgStore, redisCache)

	if err := bootstrapUser(ctx, provider, cfg.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap user: %w", err)
	}

	// 6. Build router with dependencies
	router := newRouter(cfg, pgStore, redisCache, provider)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newAuthProvider(cfg *config.Config, s store.Store, c cache.Cache) *auth.Provider {
	return auth.NewProvider(s, c, auth.Options{
		ResetSecret: cfg.Auth.ResetSecret,
		SessionTTL:  cfg.Auth.SessionTTL,
		ResetTTL:    cfg.Auth.ResetTTL,
		Mailer:      auth.LogMailer{},
	})
}

// bootstrapUser creates the configured first account. An existing account is left as is.
func bootstrapUser(ctx context.Context, provider *auth.Provider, b config.BootstrapConfig) error {
	if b.Email == "" {
		return nil
	}
	u, err := provider.CreateUser(ctx, b.Email, b.Password)
	if errors.Is(err, auth.ErrUserExists) {
		slog.Info("bootstrap user already exists", "email", b.Email)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("bootstrap user created", "user_id", u.ID)
	return nil
}

// newRouter wires every component into the HTTP router.
func newRouter(cfg *config.Config, s store.Store, c cache.Cache, provider *auth.Provider) http.Handler {
	cookieOpts := session.CookieOptions{
		MaxAge: cfg.Cookie.APIKeyMaxAge,
		Secure: cfg.Cookie.Secure,
	}
	authOpts := handler.AuthOptions{
		SecureCookies: cfg.Cookie.Secure,
		BaseURL:       cfg.Server.BaseURL,
	}

	keyClient := keys.NewClient(s)
	flow := playground.NewFlow(keyClient)
	stores := session.NewManager(c, cookieOpts)

	deps := api.Dependencies{
		Guard: guard.New(provider, guard.Options{
			Revalidate: cfg.Guard.RevalidateKeys,
			Keys:       keyClient,
			Cookie:     cookieOpts,
		}),
		DeviceOpts: cookieOpts,

		HealthHandler:  healthHandler(s, c),
		MetricsHandler: metrics.Handler(),

		LoginPage:     handler.NewLoginPageHandler(provider),
		Login:         handler.NewLoginHandler(provider, authOpts),
		Logout:        handler.NewLogoutHandler(provider, authOpts),
		ResetPassword: handler.NewResetPasswordHandler(provider, authOpts),
		ConfirmReset:  handler.NewConfirmResetHandler(provider),

		Dashboard: handler.NewDashboardHandler(provider),
		ListKeys:  handler.NewListKeysHandler(keyClient),
		CreateKey: handler.NewCreateKeyHandler(keyClient),
		RenameKey: handler.NewRenameKeyHandler(keyClient),
		DeleteKey: handler.NewDeleteKeyHandler(keyClient),

		Playground:    handler.NewPlaygroundHandler(),
		ValidateKey:   handler.NewValidateHandler(flow, stores),
		GetSession:    handler.NewGetSessionHandler(stores),
		ForgetSession: handler.NewForgetSessionHandler(flow, stores),
		Protected:     handler.NewProtectedHandler(),
	}

	return api.NewRouter(deps)
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
