package identity

import (
	"errors"
	"fmt"

	"forum/cmd/security/password"
)

// PasswordConfig returns the effective Argon2id settings. Invalid env is an
// operational error and is returned as such rather than silently weakened.
func PasswordConfig() (password.Config, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return password.Config{}, fmt.Errorf("identity: password config: %w", err)
	}
	return cfg, nil
}

// hashPassword expects plain to have passed ValidatePassword already.
// Any failure here means the runtime is broken (entropy, config) and is
// reported as internal.
func hashPassword(cfg password.Config, plain string) (string, error) {
	enc, err := cfg.Hash(plain)
	if err != nil {
		return "", fmt.Errorf("identity: hash password: %w", err)
	}
	return enc, nil
}

// verifyPassword reports a malformed stored hash as an integrity problem,
// not as a wrong password.
func verifyPassword(cfg password.Config, encoded, plain string) (bool, error) {
	ok, err := cfg.Verify(encoded, plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return false, fmt.Errorf("%w: %w", ErrIntegrity, err)
		}
		return false, err
	}
	return ok, nil
}
