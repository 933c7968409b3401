package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forum/cmd/internal/storage/pgtest"
	"forum/cmd/security/token"
)

// Integration tests are opt-in and require FORUM_DATABASE_URL.

func mustNewPostgresService(t *testing.T) (*Service, *PostgresStore) {
	t.Helper()

	pool, schema := pgtest.Schema(t)
	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewService(st, testPasswordConfig()), st
}

func TestPostgresStore_RegisterLoginResolve(t *testing.T) {
	t.Parallel()

	svc, st := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tok, err := svc.Register(ctx, "Ivy@Example.com", "ivy", "correct-horse-9")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := token.Validate(tok); err != nil {
		t.Fatalf("token shape: %v", err)
	}

	got, err := svc.Login(ctx, "ivy@example.com", "correct-horse-9")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got != tok {
		t.Fatalf("login rotated token: %q != %q", got, tok)
	}

	id, ok, err := svc.Resolve(ctx, tok)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}

	u, err := st.UserByID(ctx, id)
	if err != nil {
		t.Fatalf("user by id: %v", err)
	}
	if u.Email != "ivy@example.com" || u.Role != RoleUser || u.Token != tok {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.LastActivity.Before(u.CreatedOn) {
		t.Fatalf("last_activity before created_on: %+v", u)
	}

	_, err = svc.Login(ctx, "ivy@example.com", "wrong-horse-9")
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}

	never, _ := token.New()
	if _, ok, err := svc.Resolve(ctx, never); ok || err != nil {
		t.Fatalf("expected absent for unknown token, ok=%v err=%v", ok, err)
	}
}

// The UNIQUE constraint backs the email fast path: bypass EmailTaken by
// going to the store directly.
func TestPostgresStore_CreateUser_EmailConstraint(t *testing.T) {
	t.Parallel()

	_, st := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mk := func(username string) CreateUserInput {
		tok, err := token.New()
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		return CreateUserInput{
			Email:        "dup@example.com",
			Username:     username,
			PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
			Token:        tok,
		}
	}

	if _, err := st.CreateUser(ctx, mk("first")); err != nil {
		t.Fatalf("create user 1: %v", err)
	}
	_, err := st.CreateUser(ctx, mk("second"))
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestPostgresStore_ConcurrentRegisterSameEmail(t *testing.T) {
	t.Parallel()

	svc, _ := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const n = 6
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		inUse int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, "same@example.com", "user"+string(rune('a'+i)), "correct-horse-9")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrEmailInUse):
				inUse++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || inUse != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, ok, inUse)
	}
}

func TestPostgresStore_UsernameCaseInsensitive(t *testing.T) {
	t.Parallel()

	svc, _ := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := svc.Register(ctx, "jo@example.com", "Navid", "correct-horse-9"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, "jo2@example.com", "nAvId", "correct-horse-9")
	if !errors.Is(err, ErrUsernameInUse) {
		t.Fatalf("expected ErrUsernameInUse, got %v", err)
	}
}

func TestPostgresStore_ReissueToken(t *testing.T) {
	t.Parallel()

	svc, _ := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	old, err := svc.Register(ctx, "kim@example.com", "kim", "correct-horse-9")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id, _, _ := svc.Resolve(ctx, old)

	fresh, err := svc.ReissueToken(ctx, id)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if _, ok, _ := svc.Resolve(ctx, old); ok {
		t.Fatalf("old token still resolves")
	}
	if got, ok, _ := svc.Resolve(ctx, fresh); !ok || got != id {
		t.Fatalf("new token does not resolve to %d", id)
	}

	if _, err := svc.ReissueToken(ctx, id+1000); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_SwapTokenIsConditional(t *testing.T) {
	t.Parallel()

	svc, st := mustNewPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	old, err := svc.Register(ctx, "lee@example.com", "lee", "correct-horse-9")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id, _, _ := svc.Resolve(ctx, old)

	first, _ := token.New()
	second, _ := token.New()
	if err := st.SwapToken(ctx, id, old, first, time.Now()); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if err := st.SwapToken(ctx, id, old, second, time.Now()); !errors.Is(err, ErrTokenChanged) {
		t.Fatalf("stale swap: expected ErrTokenChanged, got %v", err)
	}
	if got, err := st.UserIDByToken(ctx, first); err != nil || got != id {
		t.Fatalf("first token: id=%d err=%v", got, err)
	}
	if err := st.SwapToken(ctx, id+1000, first, second, time.Now()); !IsNotFound(err) {
		t.Fatalf("missing user: expected not found, got %v", err)
	}
}
