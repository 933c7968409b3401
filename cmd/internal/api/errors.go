package api

import (
	"errors"
	"net/http"

	"forum/cmd/identity"
	"forum/cmd/internal/vote"
)

var reasonMessages = map[string]string{
	"invalid_email":      "email is not valid",
	"invalid_username":   "username is not valid",
	"invalid_password":   "password does not meet requirements",
	"email_in_use":       "email is already registered",
	"username_in_use":    "username is already taken",
	"user_not_found":     "no user with that email",
	"incorrect_password": "incorrect password",
}

// writeDomainError maps service errors onto the API's stable error codes.
// It reports whether err was a caller-facing rejection.
func writeDomainError(w http.ResponseWriter, err error) (code string, rejected bool) {
	if code := identity.ReasonCode(err); code != "" {
		status := http.StatusBadRequest
		switch {
		case code == "incorrect_password":
			status = http.StatusUnauthorized
		case errors.Is(err, identity.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, identity.ErrNotFound):
			status = http.StatusNotFound
		}
		writeError(w, status, code, reasonMessages[code])
		return code, true
	}

	switch {
	case errors.Is(err, vote.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "already_voted", "vote already cast")
		return "already_voted", true
	case errors.Is(err, vote.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "post_not_found", "post not found")
		return "post_not_found", true
	case errors.Is(err, vote.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
		return "invalid_request", true
	}

	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	return "server_error", false
}
