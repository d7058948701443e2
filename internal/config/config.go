package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minResetSecretLen = 32

// Config holds all configuration for the keygate server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Cookie    CookieConfig
	Guard     GuardConfig
	Bootstrap BootstrapConfig
}

type ServerConfig struct {
	Port    int
	Env     string
	BaseURL string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	ResetSecret string
	SessionTTL  time.Duration
	ResetTTL    time.Duration
}

// CookieConfig controls the api_key cookie mirror. A zero MaxAge keeps the
// cookie for the browser session only.
type CookieConfig struct {
	APIKeyMaxAge time.Duration
	Secure       bool
}

type GuardConfig struct {
	// RevalidateKeys makes the guard look up the api_key cookie in the key
	// store instead of trusting its presence.
	RevalidateKeys bool
}

// BootstrapConfig optionally seeds a first account at startup.
type BootstrapConfig struct {
	Email    string
	Password string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("KEYGATE_PORT", 8080),
			Env:     envString("KEYGATE_ENV", "development"),
			BaseURL: strings.TrimRight(envString("APP_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			ResetSecret: os.Getenv("AUTH_RESET_SECRET"),
			SessionTTL:  envDuration("AUTH_SESSION_TTL", 24*time.Hour),
			ResetTTL:    envDuration("AUTH_RESET_TTL", time.Hour),
		},
		Cookie: CookieConfig{
			APIKeyMaxAge: envDurationSecs("API_KEY_COOKIE_MAX_AGE_SECS", 0),
			Secure:       envBool("COOKIE_SECURE", false),
		},
		Guard: GuardConfig{
			RevalidateKeys: envBool("GUARD_REVALIDATE_KEYS", false),
		},
		Bootstrap: BootstrapConfig{
			Email:    os.Getenv("BOOTSTRAP_USER_EMAIL"),
			Password: os.Getenv("BOOTSTRAP_USER_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Auth.ResetSecret == "" {
		return fmt.Errorf("AUTH_RESET_SECRET is required")
	}
	if len(c.Auth.ResetSecret) < minResetSecretLen {
		return fmt.Errorf("AUTH_RESET_SECRET must be at least %d bytes, got %d", minResetSecretLen, len(c.Auth.ResetSecret))
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL must be positive, got %s", c.Auth.SessionTTL)
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("APP_BASE_URL must start with http:// or https://, got %q", c.Server.BaseURL)
	}
	if (c.Bootstrap.Email == "") != (c.Bootstrap.Password == "") {
		return fmt.Errorf("BOOTSTRAP_USER_EMAIL and BOOTSTRAP_USER_PASSWORD must be set together")
	}
	return nil
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
