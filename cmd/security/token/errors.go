package token

import "errors"

var (
	// ErrMalformed reports a value that is not 24 URL-safe characters
	// decoding to 16 bytes.
	ErrMalformed = errors.New("token: malformed")

	ErrHMACKeyMissing  = errors.New("token: FORUM_TOKEN_HMAC_KEY not set")
	ErrHMACKeyTooShort = errors.New("token: FORUM_TOKEN_HMAC_KEY too short")
)
