package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable the server reads at startup. Values come from
// the environment, with an optional .env file for development.
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	AuthMode string `mapstructure:"AUTH_MODE"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	VaultDir       string        `mapstructure:"VAULT_DIR"`
	WebhookTimeout time.Duration `mapstructure:"WEBHOOK_TIMEOUT"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

// minSigningKeyLen matches the 256-bit output of HS256.
const minSigningKeyLen = 32

// setting names one environment variable; a nil fallback means the variable
// has no default and may be absent.
type setting struct {
	key      string
	fallback interface{}
}

var settings = []setting{
	{"PORT", "8000"},
	{"ENV", "development"},
	{"AUTH_MODE", nil},
	{"DATABASE_URL", nil},
	{"DB_MAX_CONNS", 20},
	{"DB_MIN_CONNS", 5},
	{"DB_CONN_MAX_LIFETIME", "1h"},
	{"DB_CONN_MAX_IDLE_TIME", "30m"},
	{"AUTH_ISSUER", nil},
	{"AUTH_JWKS_URL", nil},
	{"AUTH_AUDIENCE", nil},
	{"AUTH_SIGNING_KEY", nil},
	{"CORS_ORIGINS", "http://localhost:3000"},
	{"RATE_LIMIT_RPS", 100},
	{"RATE_LIMIT_BURST", 200},
	{"VAULT_DIR", "data/vault"},
	{"WEBHOOK_TIMEOUT", "10s"},
	{"TLS_ENABLED", nil},
	{"TLS_CERT_FILE", nil},
	{"TLS_KEY_FILE", nil},
}

const devBanner = `WARNING: ==========================================================
WARNING: Running in DEVELOPMENT mode: authentication is stubbed and
WARNING: every request is treated as an admin. Never expose this
WARNING: configuration beyond a local workstation. Set ENV=production
WARNING: and configure AUTH_ISSUER or AUTH_SIGNING_KEY to enforce auth.
WARNING: ==========================================================`

// Load reads the configuration from the environment and an optional .env
// file. It fails only on undecodable values or a missing DATABASE_URL;
// Validate covers everything else.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface bound-but-unset keys to
	// Unmarshal, so every key is bound explicitly.
	for _, s := range settings {
		if s.fallback != nil {
			v.SetDefault(s.key, s.fallback)
		}
		v.BindEnv(s.key)
	}

	// A .env file is optional; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}

	// CORS_ORIGINS arrives as one comma-joined string.
	if cfg.CORSOrigins == nil {
		if raw := v.GetString("CORS_ORIGINS"); raw != "" {
			cfg.CORSOrigins = strings.Split(raw, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// The structured logger is not wired yet when Load runs, so the
	// warning goes through the stdlib logger.
	if cfg.IsDev() {
		log.Print(devBanner)
	}

	return cfg, nil
}

// IsDev reports whether the server runs with ENV=development.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. An explicit AUTH_MODE
// always wins; otherwise the mode is inferred from what is configured:
// "development" when ENV=development, "external" when an OIDC issuer is set,
// "hmac" when only a signing key is set. The fallback is "external", which
// Validate refuses without an issuer.
func (c *Config) ResolvedAuthMode() string {
	switch {
	case c.AuthMode != "":
		return c.AuthMode
	case c.IsDev():
		return "development"
	case c.AuthIssuer != "":
		return "external"
	case c.AuthSigningKey != "":
		return "hmac"
	default:
		return "external"
	}
}

// Validate checks that the configuration is safe to run. Outside development,
// JWT verification must be configured: an OIDC issuer for "external" mode or
// a sufficiently long shared secret for "hmac" mode.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case "external":
		if c.AuthIssuer == "" {
			return fmt.Errorf(
				"AUTH_ISSUER must be set for AUTH_MODE=external (ENV=%q); "+
					"use AUTH_MODE=hmac with AUTH_SIGNING_KEY for shared-secret deployments", c.Env)
		}
	case "hmac":
		if len(c.AuthSigningKey) < minSigningKeyLen {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d characters for AUTH_MODE=hmac, got %d",
				minSigningKeyLen, len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q, valid modes are development, hmac and external", mode)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_ENABLED is set but TLS_CERT_FILE is not")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_ENABLED is set but TLS_KEY_FILE is not")
		}
	}

	return nil
}
