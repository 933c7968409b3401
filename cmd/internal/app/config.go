package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// AutoMigrate applies embedded migrations on startup.
	AutoMigrate bool

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, FORUM_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so cache keys
	// are keyed fingerprints.
	RequireTokenHMAC bool

	// Empty RedisAddr disables the token cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TokenCacheTTL time.Duration

	VoteTxTimeout   time.Duration
	VoteLockTimeout time.Duration

	// DevSeedPosts creates posts 1..N in in-memory mode.
	DevSeedPosts int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("FORUM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("FORUM_LOG_LEVEL", "info"),
		LogFormat: EnvString("FORUM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("FORUM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FORUM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FORUM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FORUM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FORUM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("FORUM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FORUM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FORUM_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("FORUM_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("FORUM_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("FORUM_REQUIRE_TOKEN_HMAC", false),

		RedisAddr:     EnvString("FORUM_REDIS_ADDR", ""),
		RedisPassword: EnvString("FORUM_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("FORUM_REDIS_DB", 0),
		TokenCacheTTL: EnvDuration("FORUM_TOKEN_CACHE_TTL", 10*time.Minute),

		VoteTxTimeout:   EnvDuration("FORUM_VOTE_TX_TIMEOUT", 5*time.Second),
		VoteLockTimeout: EnvDuration("FORUM_VOTE_LOCK_TIMEOUT", 2*time.Second),

		DevSeedPosts: EnvInt("FORUM_DEV_SEED_POSTS", 0),

		CORSAllowedOrigins:   EnvCSV("FORUM_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("FORUM_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("FORUM_CORS_MAX_AGE_SECONDS", 600),
	}
}
