package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TokenCookieName is the cookie that carries the session token for browsers.
const TokenCookieName = "token"

// Config controls API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// AuthRateMax requests per AuthRateWindow are allowed per client IP on /auth/*.
	AuthRateMax    int
	AuthRateWindow time.Duration

	CookieSecure   bool
	CookieDomain   string
	CookieSameSite http.SameSite
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:     envBool("FORUM_API_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("FORUM_API_MAX_BODY_BYTES", 64<<10),
		AuthRateMax:    envInt("FORUM_AUTH_RATE_MAX", 20),
		AuthRateWindow: envDuration("FORUM_AUTH_RATE_WINDOW", time.Minute),
		CookieSecure:   envBool("FORUM_COOKIE_SECURE", true),
		CookieDomain:   strings.TrimSpace(os.Getenv("FORUM_COOKIE_DOMAIN")),
		CookieSameSite: parseSameSite(os.Getenv("FORUM_COOKIE_SAMESITE")),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.AuthRateMax <= 0 {
		c.AuthRateMax = 20
	}
	if c.AuthRateWindow <= 0 {
		c.AuthRateWindow = time.Minute
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = http.SameSiteLaxMode
	}
	return c
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
