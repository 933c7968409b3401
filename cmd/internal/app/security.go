package app

import (
	"errors"
	"fmt"

	"forum/cmd/security/token"
)

// minTokenHMACKey is the shortest FORUM_TOKEN_HMAC_KEY accepted when the
// keyed cache fingerprint is required.
const minTokenHMACKey = 32

// ValidateStartupConfig rejects configurations that would run the server in
// a weaker or self-contradicting mode than the operator asked for.
func ValidateStartupConfig(cfg Config) error {
	if cfg.RequireTokenHMAC {
		if cfg.RedisAddr == "" {
			return errors.New("config: FORUM_REQUIRE_TOKEN_HMAC=true needs FORUM_REDIS_ADDR (the key only guards the token cache)")
		}
		if _, err := token.HMACKeyFromEnv(minTokenHMACKey); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("config: FORUM_TOKEN_HMAC_KEY is required when FORUM_REQUIRE_TOKEN_HMAC=true")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return fmt.Errorf("config: FORUM_TOKEN_HMAC_KEY must be at least %d bytes", minTokenHMACKey)
			default:
				return err
			}
		}
	}

	// lock_timeout is applied inside the vote transaction, so it must expire
	// before the transaction deadline does.
	if cfg.VoteTxTimeout > 0 && cfg.VoteLockTimeout >= cfg.VoteTxTimeout {
		return fmt.Errorf("config: FORUM_VOTE_LOCK_TIMEOUT (%s) must be below FORUM_VOTE_TX_TIMEOUT (%s)",
			cfg.VoteLockTimeout, cfg.VoteTxTimeout)
	}
	if cfg.DatabaseURL == "" && cfg.AutoMigrate {
		return errors.New("config: FORUM_DB_AUTO_MIGRATE=true needs FORUM_DATABASE_URL")
	}
	return nil
}
