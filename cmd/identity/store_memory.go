package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when the DB is not configured.
// A single mutex serializes writers, which gives the same uniqueness
// guarantees as the Postgres constraints.
type InMemoryStore struct {
	mu sync.Mutex

	nextID  int64
	byID    map[int64]*User
	byEmail map[string]int64
	byName  map[string]int64 // lower(username)
	byToken map[string]int64
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[int64]*User),
		byEmail: make(map[string]int64),
		byName:  make(map[string]int64),
		byToken: make(map[string]int64),
	}
}

func (s *InMemoryStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if in.Email == "" || in.Username == "" || in.PasswordHash == "" || in.Token == "" {
		return User{}, pgInvalid(op, "incomplete user")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := strings.ToLower(in.Username)
	switch {
	case s.has(s.byEmail, in.Email):
		return User{}, ConflictError{Op: op, Field: "email"}
	case s.has(s.byName, nameKey):
		return User{}, ConflictError{Op: op, Field: "username"}
	case s.has(s.byToken, in.Token):
		return User{}, ConflictError{Op: op, Field: "token"}
	}

	s.nextID++
	u := &User{
		ID:           s.nextID,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Token:        in.Token,
		Role:         RoleUser,
		CreatedOn:    now,
		LastActivity: now,
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.byName[nameKey] = u.ID
	s.byToken[u.Token] = u.ID

	return *u, nil
}

func (s *InMemoryStore) CredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return Credentials{}, NotFoundError{Op: "identity.CredentialsByEmail", Resource: "user"}
	}
	u := s.byID[id]
	return Credentials{UserID: u.ID, PasswordHash: u.PasswordHash, Token: u.Token}, nil
}

func (s *InMemoryStore) TouchLastActivity(ctx context.Context, userID int64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: "identity.TouchLastActivity", Resource: "user"}
	}
	if now.After(u.LastActivity) {
		u.LastActivity = now
	}
	return nil
}

func (s *InMemoryStore) UserIDByToken(ctx context.Context, token string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return 0, NotFoundError{Op: "identity.UserIDByToken", Resource: "user"}
	}
	return id, nil
}

func (s *InMemoryStore) UserByID(ctx context.Context, userID int64) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.UserByID", Resource: "user"}
	}
	return *u, nil
}

func (s *InMemoryStore) UserByToken(ctx context.Context, token string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return User{}, NotFoundError{Op: "identity.UserByToken", Resource: "user"}
	}
	return *s.byID[id], nil
}

func (s *InMemoryStore) SwapToken(ctx context.Context, userID int64, from, to string, now time.Time) error {
	const op = "identity.SwapToken"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	if u.Token != from {
		return OpError{Op: op, Kind: ErrTokenChanged}
	}
	if owner, taken := s.byToken[to]; taken && owner != userID {
		return ConflictError{Op: op, Field: "token"}
	}

	delete(s.byToken, u.Token)
	u.Token = to
	s.byToken[to] = userID
	if now.After(u.LastActivity) {
		u.LastActivity = now
	}
	return nil
}

func (s *InMemoryStore) has(m map[string]int64, k string) bool {
	_, ok := m[k]
	return ok
}
