package identity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is a user's forum role. Stored as the role_type enum.
type Role string

const (
	RoleBanned     Role = "banned"
	RoleUnverified Role = "unverified"
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
)

// ParseRole accepts the stored lowercase form.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleBanned, RoleUnverified, RoleUser, RoleModerator, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("identity: unknown role %q", s)
	}
}

// User is the forum's identity record.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Token        string
	Role         Role

	CreatedOn    time.Time
	LastActivity time.Time
}

// CreateUserInput is a fully validated registration. Email is normalized,
// PasswordHash is a PHC string and Token a freshly issued session token.
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	Token        string
	Now          time.Time
}

// Credentials is what Login needs for one email.
type Credentials struct {
	UserID       int64
	PasswordHash string
	Token        string
}

// Store is the identity persistence boundary.
//
// Contract:
//   - CreateUser persists one row atomically with role RoleUser. Uniqueness
//     violations come back as ConflictError with Field email, username or token.
//   - Lookups that match nothing return NotFoundError{Resource: "user"}.
//   - SwapToken replaces from with to in a single statement, so the old
//     token stops resolving the moment the new one is stored. It returns
//     ErrTokenChanged when the stored token is not from.
type Store interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	CredentialsByEmail(ctx context.Context, email string) (Credentials, error)
	TouchLastActivity(ctx context.Context, userID int64, now time.Time) error

	UserIDByToken(ctx context.Context, token string) (int64, error)
	UserByID(ctx context.Context, userID int64) (User, error)
	UserByToken(ctx context.Context, token string) (User, error)

	SwapToken(ctx context.Context, userID int64, from, to string, now time.Time) error
}

// TokenCache is an optional read-through cache for token resolution.
// Implementations must treat a miss as (0, false, nil).
type TokenCache interface {
	Get(ctx context.Context, token string) (int64, bool, error)
	Set(ctx context.Context, token string, userID int64) error
	Evict(ctx context.Context, token string) error
}
