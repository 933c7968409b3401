package identity

import (
	"fmt"
	"regexp"
	"strings"

	"forum/cmd/security/password"
)

const (
	maxEmailLen    = 254
	minUsernameLen = 3
	maxUsernameLen = 32
)

var (
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername trims surrounding space. Case is preserved for display;
// uniqueness is case-insensitive at the store.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// ValidateEmail expects a normalized email.
func ValidateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen || !emailRe.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateUsername expects a normalized username.
func ValidateUsername(username string) error {
	n := len(username)
	if n < minUsernameLen || n > maxUsernameLen || !usernameRe.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword applies the configured strength policy. The underlying
// policy error stays in the chain for logging.
func ValidatePassword(cfg password.Config, plain string) error {
	if err := cfg.Validate(plain); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}
	return nil
}
