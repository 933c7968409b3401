package vote

import (
	"errors"
	"fmt"
)

// Sentinel errors (stable for errors.Is and for mapping to API status codes).
var (
	ErrAlreadyVoted = errors.New("already_voted")
	ErrPostNotFound = errors.New("post_not_found")

	ErrInvalidInput = errors.New("invalid_input")

	// ErrIntegrity marks a constraint trip that caller input cannot explain.
	ErrIntegrity = errors.New("integrity_violation")
)

// OpError is a typed operation error with a stable Op + Kind contract.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }
