package app

import (
	"strings"
	"testing"
	"time"
)

func TestValidateStartupConfig(t *testing.T) {
	t.Setenv("FORUM_TOKEN_HMAC_KEY", strings.Repeat("k", 32))

	cases := []struct {
		name    string
		mut     func(*Config)
		wantErr string
	}{
		{name: "defaults", mut: func(*Config) {}},
		{
			name:    "hmac without redis",
			mut:     func(c *Config) { c.RequireTokenHMAC = true },
			wantErr: "FORUM_REDIS_ADDR",
		},
		{
			name: "hmac with redis",
			mut: func(c *Config) {
				c.RequireTokenHMAC = true
				c.RedisAddr = "127.0.0.1:6379"
			},
		},
		{
			name: "lock timeout not below tx timeout",
			mut: func(c *Config) {
				c.VoteTxTimeout = time.Second
				c.VoteLockTimeout = time.Second
			},
			wantErr: "FORUM_VOTE_LOCK_TIMEOUT",
		},
		{
			name:    "auto migrate without database",
			mut:     func(c *Config) { c.AutoMigrate = true },
			wantErr: "FORUM_DATABASE_URL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{VoteTxTimeout: 5 * time.Second, VoteLockTimeout: 2 * time.Second}
			tc.mut(&cfg)

			err := ValidateStartupConfig(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestValidateStartupConfig_ShortHMACKey(t *testing.T) {
	t.Setenv("FORUM_TOKEN_HMAC_KEY", "short")

	err := ValidateStartupConfig(Config{RequireTokenHMAC: true, RedisAddr: "127.0.0.1:6379"})
	if err == nil || !strings.Contains(err.Error(), "at least 32 bytes") {
		t.Fatalf("err=%v", err)
	}
}
