// Package ids provides ULID helpers for request and subscriber identifiers.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRequestID returns a ULID for correlating a request across log lines.
// It never fails: if the entropy source errors, the id degrades to the
// timestamp part only.
func NewRequestID() string {
	now := time.Now().UTC()
	if id, err := NewULID(now); err == nil {
		return id
	}
	var id ulid.ULID
	_ = id.SetTime(ulid.Timestamp(now))
	return id.String()
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
