package live

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Subprotocol is required on every connection.
	Subprotocol = "forum.live.v1"

	// Clients only send control frames and close; anything large is abuse.
	maxFrameBytes = 4 << 10

	defaultSendQueue = 16

	defaultWriteTimeout   = 5 * time.Second
	defaultHeartbeatEvery = 25 * time.Second
	defaultHeartbeatWait  = 5 * time.Second
	closeGrace            = time.Second
	maxPingFailures       = 3

	defaultRateEvents = 30
	defaultRateWindow = 10 * time.Second

	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Config controls the gateway. Zero values take the defaults above.
type Config struct {
	OriginRequired bool
	AllowedOrigins []string
	DevInsecure    bool

	SendQueue      int
	WriteTimeout   time.Duration
	HeartbeatEvery time.Duration
	HeartbeatWait  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// ConfigFromEnv reads FORUM_WS_* on top of secure defaults.
func ConfigFromEnv() Config {
	return Config{
		OriginRequired: envBool("FORUM_WS_ORIGIN_REQUIRED", true),
		AllowedOrigins: envCSV("FORUM_WS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		DevInsecure:    envBool("FORUM_WS_DEV_INSECURE", false),

		SendQueue:      envInt("FORUM_WS_SEND_QUEUE", defaultSendQueue),
		WriteTimeout:   envDuration("FORUM_WS_WRITE_TIMEOUT", defaultWriteTimeout),
		HeartbeatEvery: envDuration("FORUM_WS_HEARTBEAT_INTERVAL", defaultHeartbeatEvery),
		HeartbeatWait:  envDuration("FORUM_WS_HEARTBEAT_TIMEOUT", defaultHeartbeatWait),

		RateEvents: envInt("FORUM_WS_RATE_EVENTS", defaultRateEvents),
		RateWindow: envDuration("FORUM_WS_RATE_WINDOW", defaultRateWindow),
	}
}

func (c Config) withDefaults() Config {
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = defaultHeartbeatEvery
	}
	if c.HeartbeatWait <= 0 {
		c.HeartbeatWait = defaultHeartbeatWait
	}
	if c.RateEvents <= 0 {
		c.RateEvents = defaultRateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	return c
}

// ---- env helpers ----

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

func envCSV(key, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
