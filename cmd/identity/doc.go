// Package identity implements the forum's credential store, token issuer
// wiring and identity resolver.
//
// Register and Login validate input before any I/O, hash passwords with
// Argon2id (cmd/security/password) and hand out opaque 24-character session
// tokens (cmd/security/token). Resolve maps a token back to a user id and may
// be served from a read-through cache.
//
// Uniqueness of email, username and token is enforced by the store. The
// service-level email check is a fast path for a friendlier error only.
package identity
