package password

import "errors"

// Policy and hash errors. Identity maps every policy error to the
// invalid_password reason; ErrInvalidHash is a storage integrity problem.
var (
	ErrPasswordTooShort = errors.New("password: shorter than policy minimum")
	ErrPasswordTooLong  = errors.New("password: longer than policy maximum")
	ErrWeakPassword     = errors.New("password: needs a letter and a digit and must not be trivial")
	ErrInvalidCharacter = errors.New("password: invalid UTF-8 or control character")
	ErrInvalidHash      = errors.New("password: malformed or unsupported argon2id hash")
)
