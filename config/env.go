package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

func mapLookup(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// applyEnv overlays every variable that lookup finds onto cfg
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	var err error
	parse := func(key string, fn func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		if perr := fn(strings.TrimSpace(v)); perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
		}
	}
	boolean := func(key string, dst *bool) {
		parse(key, func(v string) (e error) {
			*dst, e = strconv.ParseBool(v)
			return
		})
	}
	duration := func(key string, dst *time.Duration) {
		parse(key, func(v string) (e error) {
			*dst, e = time.ParseDuration(v)
			return
		})
	}

	str("ADDR", &cfg.Addr)
	str("APP_ENV", &cfg.Env)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("AUTH_SECRET", &cfg.AuthSecret)
	str("JWT_ISSUER", &cfg.Issuer)
	str("REDIS_URL", &cfg.RedisURL)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("COOKIE_DOMAIN", &cfg.CookieDomain)
	str("PROTECTED_PREFIX", &cfg.ProtectedPrefix)
	str("LOGIN_PATH", &cfg.LoginPath)
	str("DASHBOARD_DIR", &cfg.DashboardDir)

	boolean("DEFER_SIGNUP", &cfg.DeferSignup)
	boolean("COOKIE_SECURE", &cfg.CookieSecure)

	duration("ACCESS_TTL", &cfg.AccessTTL)
	duration("REFRESH_TTL", &cfg.RefreshTTL)
	duration("NONCE_TTL", &cfg.NonceTTL)
	duration("PENDING_SIGNUP_TTL", &cfg.PendingSignupTTL)
	duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	parse("ALLOWED_CHAINS", func(v string) (e error) {
		cfg.AllowedChains, e = parseChainList(v)
		return
	})
	parse("ALLOWED_DOMAINS", func(v string) error {
		cfg.AllowedDomains = splitList(v)
		return nil
	})
	parse("CHAIN_RPC", func(v string) (e error) {
		cfg.ChainRPC, e = parseChainRPC(v)
		return
	})

	return err
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseChainList(v string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(v) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

// parseChainRPC reads "1=https://rpc-a,137=https://rpc-b"
func parseChainRPC(v string) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, part := range splitList(v) {
		id, url, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected chain=url, got %q", part)
		}
		chainID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q", id)
		}
		out[chainID] = strings.TrimSpace(url)
	}
	return out, nil
}
