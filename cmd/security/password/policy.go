package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks the password against the policy. It does not mutate input
// and never touches storage, so callers can reject before any I/O.
func (c Config) Validate(password string) error {
	if !utf8.ValidString(password) {
		return ErrInvalidCharacter
	}

	// Length is counted in runes, not bytes.
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsControl(r):
			return ErrInvalidCharacter
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if c.Policy.RequireLetter && !hasLetter {
		return ErrWeakPassword
	}
	if c.Policy.RequireDigit && !hasDigit {
		return ErrWeakPassword
	}

	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}

	return nil
}

var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"qwerty123":   {},
	"letmein1":    {},
	"abc12345":    {},
	"iloveyou1":   {},
}

// looksVeryWeak is a minimal denylist, not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	_, ok := trivialPasswords[strings.ToLower(s)]
	return ok
}
