package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"forum/cmd/security/password"
	"forum/cmd/security/token"
)

// Service implements registration, login and token resolution.
type Service struct {
	store  Store
	pw     password.Config
	cache  TokenCache
	log    *slog.Logger
	now    func() time.Time
	tokens func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables read-through token resolution.
func WithCache(c TokenCache) Option { return func(s *Service) { s.cache = c } }

// WithLogger sets the service logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenSource overrides token generation, mostly for tests.
func WithTokenSource(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.tokens = gen
		}
	}
}

// NewService constructs a Service over store with the given password config.
func NewService(store Store, pw password.Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pw:     pw,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		tokens: token.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register creates a user and returns its session token.
//
// Reasons: ErrInvalidEmail, ErrInvalidUsername, ErrInvalidPassword,
// ErrEmailInUse, ErrUsernameInUse. Anything else is internal.
func (s *Service) Register(ctx context.Context, email, username, plain string) (string, error) {
	const op = "identity.Register"

	email = NormalizeEmail(email)
	username = NormalizeUsername(username)

	if err := ValidateEmail(email); err != nil {
		return "", OpError{Op: op, Kind: err}
	}
	if err := ValidateUsername(username); err != nil {
		return "", OpError{Op: op, Kind: err}
	}
	if err := ValidatePassword(s.pw, plain); err != nil {
		return "", OpError{Op: op, Kind: err}
	}

	taken, err := s.store.EmailTaken(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%s: email lookup: %w", op, err)
	}
	if taken {
		return "", OpError{Op: op, Kind: ErrEmailInUse}
	}

	hash, err := hashPassword(s.pw, plain)
	if err != nil {
		s.log.Error("identity.register.hash.fail", "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	tok, err := s.tokens()
	if err != nil {
		s.log.Error("identity.register.token.fail", "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.store.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Token:        tok,
		Now:          s.now(),
	})
	if err != nil {
		if IsIntegrity(err) {
			s.log.Error("identity.register.integrity", "err", err)
		}
		return "", err
	}

	s.log.Info("identity.register.ok", "user_id", u.ID)
	return u.Token, nil
}

// Login verifies credentials and returns the user's existing token.
// Login never rotates the token. On success it bumps last_activity.
//
// Reasons: ErrInvalidEmail, ErrInvalidPassword, ErrUserNotFound,
// ErrIncorrectPassword.
func (s *Service) Login(ctx context.Context, email, plain string) (string, error) {
	const op = "identity.Login"

	email = NormalizeEmail(email)

	if err := ValidateEmail(email); err != nil {
		return "", OpError{Op: op, Kind: err}
	}
	if err := ValidatePassword(s.pw, plain); err != nil {
		return "", OpError{Op: op, Kind: err}
	}

	creds, err := s.store.CredentialsByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	ok, err := verifyPassword(s.pw, creds.PasswordHash, plain)
	if err != nil {
		s.log.Error("identity.login.verify.fail", "user_id", creds.UserID, "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return "", OpError{Op: op, Kind: ErrIncorrectPassword}
	}

	if err := s.store.TouchLastActivity(ctx, creds.UserID, s.now()); err != nil {
		// Credentials were valid; a stale last_activity is not worth failing the login.
		s.log.Warn("identity.login.touch.fail", "user_id", creds.UserID, "err", err)
	}

	return creds.Token, nil
}

// Resolve maps a token to its user id. An unknown or malformed token is
// (0, false, nil); only storage failures are errors.
func (s *Service) Resolve(ctx context.Context, tok string) (int64, bool, error) {
	if token.Validate(tok) != nil {
		return 0, false, nil
	}

	if s.cache != nil {
		id, ok, err := s.cache.Get(ctx, tok)
		switch {
		case err != nil:
			s.log.Warn("identity.resolve.cache.get.fail", "err", err)
		case ok:
			return id, true, nil
		}
	}

	id, err := s.store.UserIDByToken(ctx, tok)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tok, id); err != nil {
			s.log.Warn("identity.resolve.cache.set.fail", "err", err)
		}
	}
	return id, true, nil
}

// GetUser returns (User{}, false, nil) when no such user exists.
func (s *Service) GetUser(ctx context.Context, userID int64) (User, bool, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// GetUserByToken returns (User{}, false, nil) for unknown or malformed tokens.
func (s *Service) GetUserByToken(ctx context.Context, tok string) (User, bool, error) {
	if token.Validate(tok) != nil {
		return User{}, false, nil
	}

	u, err := s.store.UserByToken(ctx, tok)
	if err != nil {
		if IsNotFound(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// ReissueToken replaces the user's token with a fresh one. The previous
// token stops resolving immediately: it is swapped out in storage and then
// evicted from the cache. If the eviction cannot be confirmed the swap is
// undone and an error returned, so at most one token is valid at a time.
func (s *Service) ReissueToken(ctx context.Context, userID int64) (string, error) {
	const op = "identity.ReissueToken"

	tok, err := s.tokens()
	if err != nil {
		s.log.Error("identity.reissue.token.fail", "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var prev string
	for attempt := 0; ; attempt++ {
		u, err := s.store.UserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		err = s.store.SwapToken(ctx, userID, u.Token, tok, s.now())
		if err == nil {
			prev = u.Token
			break
		}
		// A concurrent reissue won; retry against the token it stored.
		if !errors.Is(err, ErrTokenChanged) || attempt+1 >= reissueAttempts {
			return "", err
		}
	}

	if s.cache != nil {
		if err := s.evict(ctx, prev); err != nil {
			s.log.Error("identity.reissue.cache.evict.fail", "user_id", userID, "err", err)
			restoreCtx := context.WithoutCancel(ctx)
			if rerr := s.store.SwapToken(restoreCtx, userID, tok, prev, s.now()); rerr != nil {
				s.log.Error("identity.reissue.restore.fail", "user_id", userID, "err", rerr)
			}
			return "", fmt.Errorf("%s: evict previous token: %w", op, err)
		}
	}

	s.log.Info("identity.reissue.ok", "user_id", userID)
	return tok, nil
}

const (
	reissueAttempts   = 3
	evictRetries      = 2
	evictRetryBackoff = 20 * time.Millisecond
)

// evict removes tok from the cache, retrying transient failures briefly.
func (s *Service) evict(ctx context.Context, tok string) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(evictRetryBackoff), evictRetries)
	return backoff.Retry(func() error {
		return s.cache.Evict(ctx, tok)
	}, backoff.WithContext(b, ctx))
}
