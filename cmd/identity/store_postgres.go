package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema and table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `user_id, username, email, password_hash, token, user_role::text, created_on, last_activity`

// EmailTaken is the registration fast path. The UNIQUE constraint on email
// remains the real enforcement.
func (s *PostgresStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.users()+` WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateUser inserts the user row in its own transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (
		     username, email, password_hash, token, created_on, last_activity
		   ) VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+userColumns,
		in.Username,
		in.Email,
		in.PasswordHash,
		in.Token,
		now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

// CredentialsByEmail fetches what Login needs in one round-trip.
func (s *PostgresStore) CredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	const op = "identity.CredentialsByEmail"

	var c Credentials
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, password_hash, token FROM `+s.users()+` WHERE email = $1`,
		email,
	).Scan(&c.UserID, &c.PasswordHash, &c.Token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Credentials{}, err
	}
	return c, nil
}

// TouchLastActivity never moves last_activity backwards.
func (s *PostgresStore) TouchLastActivity(ctx context.Context, userID int64, now time.Time) error {
	const op = "identity.TouchLastActivity"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+`
		    SET last_activity = GREATEST(last_activity, $2)
		  WHERE user_id = $1`,
		userID, now,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) UserIDByToken(ctx context.Context, token string) (int64, error) {
	const op = "identity.UserIDByToken"

	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM `+s.users()+` WHERE token = $1`,
		token,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, NotFoundError{Op: op, Resource: "user"}
		}
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, userID int64) (User, error) {
	const op = "identity.UserByID"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) UserByToken(ctx context.Context, token string) (User, error) {
	const op = "identity.UserByToken"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE token = $1`,
		token,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// SwapToken replaces from with to in one conditional UPDATE. There is no
// window where both tokens resolve, and two concurrent swaps of the same
// token cannot both succeed.
func (s *PostgresStore) SwapToken(ctx context.Context, userID int64, from, to string, now time.Time) error {
	const op = "identity.SwapToken"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+`
		    SET token = $3, last_activity = GREATEST(last_activity, $4)
		  WHERE user_id = $1 AND token = $2`,
		userID, from, to, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.users()+` WHERE user_id = $1)`,
		userID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return OpError{Op: op, Kind: ErrTokenChanged}
}

// ---- helpers ----

func (s *PostgresStore) users() string { return pgIdent(s.schema, "users") }

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Token,
		&role,
		&u.CreatedOn,
		&u.LastActivity,
	); err != nil {
		return User{}, err
	}

	r, err := ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	u.Role = r
	return u, nil
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names, fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email":
		return "email", true
	case "uq_users_username_lower":
		return "username", true
	case "uq_users_token":
		return "token", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "token"):
			return "token", true
		default:
			return "unique", true
		}
	}
}
