package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// RawBytes is the entropy of a session token.
	RawBytes = 16

	// EncodedLen is the length of an encoded session token.
	EncodedLen = 24

	// HMACEnvKey is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "FORUM_TOKEN_HMAC_KEY"
)

var enc = base64.URLEncoding

// New returns a fresh 24-character URL-safe session token.
func New() (string, error) {
	b := make([]byte, RawBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return enc.EncodeToString(b), nil
}

// Validate reports ErrMalformed unless s has the exact shape New produces.
// Callers use it to skip storage lookups for garbage input.
func Validate(s string) error {
	if len(s) != EncodedLen {
		return ErrMalformed
	}
	b, err := enc.DecodeString(s)
	if err != nil || len(b) != RawBytes {
		return ErrMalformed
	}
	return nil
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key, enforcing a minimum byte length.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return []byte(raw), nil
}

// Fingerprint returns a stable 64-char hex identifier for a token.
// It is HMAC-SHA256 when FORUM_TOKEN_HMAC_KEY is set, SHA-256 otherwise.
func Fingerprint(tok string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, []byte(key))
}
