// Package token issues and fingerprints forum session tokens.
//
// A session token is 16 bytes from crypto/rand encoded with padded URL-safe
// base64, which is always 24 characters. Tokens are bearer credentials with
// no embedded metadata and no expiry.
//
// Fingerprints (HMAC-SHA256 or SHA-256 hex) are used wherever a token would
// otherwise be copied outside the primary store, e.g. as a cache key.
//
// Environment:
//   - FORUM_TOKEN_HMAC_KEY: when set, fingerprints use HMAC with this key.
package token
