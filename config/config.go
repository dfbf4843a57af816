// Package config loads server settings from defaults, an optional YAML file,
// a .env file, the environment and an optional AWS Secrets Manager secret.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// MinSecretLength is the shortest HS256 secret accepted in production
	MinSecretLength = 32
)

// Config holds runtime settings for the wallet auth server
type Config struct {
	Addr string `yaml:"addr"`
	Env  string `yaml:"env"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or text

	AuthSecret string `yaml:"auth_secret"`
	Issuer     string `yaml:"issuer"`

	// Empty selects the in-memory stores and repository
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	ChainRPC       map[int64]string `yaml:"chain_rpc"`
	AllowedChains  []int64          `yaml:"allowed_chains"`
	AllowedDomains []string         `yaml:"allowed_domains"`
	DeferSignup    bool             `yaml:"defer_signup"`

	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	NonceTTL         time.Duration `yaml:"nonce_ttl"`
	PendingSignupTTL time.Duration `yaml:"pending_signup_ttl"`

	CookieDomain string `yaml:"cookie_domain"`
	CookieSecure bool   `yaml:"cookie_secure"`

	ProtectedPrefix string `yaml:"protected_prefix"`
	LoginPath       string `yaml:"login_path"`
	DashboardDir    string `yaml:"dashboard_dir"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadDefaults populates Config with development defaults.
// The secret is insecure and Validate rejects it in production.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.Env = EnvDevelopment
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.AuthSecret = "dev-secret"
	c.Issuer = "walletauth"
	c.ChainRPC = map[int64]string{}
	c.AllowedChains = []int64{1}
	c.AccessTTL = time.Hour
	c.RefreshTTL = 7 * 24 * time.Hour
	c.NonceTTL = 5 * time.Minute
	c.PendingSignupTTL = 10 * time.Minute
	c.ProtectedPrefix = "/dashboard"
	c.LoginPath = "/login"
	c.ShutdownTimeout = 10 * time.Second
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("auth secret is required"))
	}
	if c.IsProduction() && len(c.AuthSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth secret must be at least %d bytes in production", MinSecretLength))
	}
	if len(c.AllowedChains) == 0 {
		errs = append(errs, errors.New("at least one allowed chain is required"))
	}
	for _, id := range c.AllowedChains {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("invalid chain id %d", id))
		}
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.NonceTTL <= 0 || c.PendingSignupTTL <= 0 {
		errs = append(errs, errors.New("token and nonce lifetimes must be positive"))
	}
	if c.AccessTTL > c.RefreshTTL {
		errs = append(errs, errors.New("access ttl must not exceed refresh ttl"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
