// Package password hashes and verifies forum account passwords.
//
// Hashes are Argon2id in the PHC string format, so the per-user salt and the
// cost parameters travel inside the stored hash:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Stored hashes are treated as untrusted input during Verify: decoding is
// strict and parameters far above the configured cost are refused.
package password
