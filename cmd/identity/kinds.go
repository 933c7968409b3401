package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")

	// ErrIntegrity marks a storage constraint trip that no caller input can
	// explain. It is reported as an internal failure.
	ErrIntegrity = errors.New("integrity_violation")

	// ErrTokenChanged is returned by Store.SwapToken when the stored token is
	// no longer the expected one.
	ErrTokenChanged = errors.New("token_changed")
)

// Rejection reasons. Each one unwraps to its kind, so both
// errors.Is(err, ErrEmailInUse) and errors.Is(err, ErrConflict) hold.
var (
	ErrInvalidEmail    = reason("invalid_email", ErrInvalidInput)
	ErrInvalidUsername = reason("invalid_username", ErrInvalidInput)
	ErrInvalidPassword = reason("invalid_password", ErrInvalidInput)

	ErrEmailInUse    = reason("email_in_use", ErrConflict)
	ErrUsernameInUse = reason("username_in_use", ErrConflict)

	ErrUserNotFound      = reason("user_not_found", ErrNotFound)
	ErrIncorrectPassword = reason("incorrect_password", ErrInvalidInput)
)

type reasonError struct {
	code string
	kind error
}

func reason(code string, kind error) error { return &reasonError{code: code, kind: kind} }

func (e *reasonError) Error() string { return e.code }

func (e *reasonError) Unwrap() error { return e.kind }

// ReasonCode returns the stable snake_case code of the first rejection reason
// in err's chain, or "" when err carries none.
func ReasonCode(err error) string {
	var r *reasonError
	if errors.As(err, &r) {
		return r.code
	}
	return ""
}
