package vote

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

	"forum/cmd/internal/storage/dbretry"
)

// PostgresStore implements the ledger over PostgreSQL.
//
// The pool is owned by the caller. Locks are always taken in the same
// order (votes row, then posts row), so concurrent casts cannot deadlock
// each other.
type PostgresStore struct {
	pool        *pgxpool.Pool
	schema      string
	lockTimeout time.Duration
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding votes and posts (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("vote: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithLockTimeout bounds how long a cast waits on a row lock. Zero leaves
// the server default.
func WithLockTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) error {
		if d < 0 {
			return fmt.Errorf("vote: negative lock timeout")
		}
		s.lockTimeout = d
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:        pool,
		schema:      "public",
		lockTimeout: 2 * time.Second,
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
		return nil, fmt.Errorf("vote: nil pool")
	}
	return st, nil
}

// Cast applies one vote in a single READ COMMITTED transaction.
//
// INSERT ... ON CONFLICT DO NOTHING makes the first vote atomic: of two
// concurrent first votes for the same pair, one inserts and the other waits
// on the unique index, then sees the committed row under FOR UPDATE.
func (s *PostgresStore) Cast(ctx context.Context, in CastInput) (Result, error) {
	const op = "vote.Cast"

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	votes := pgIdent(s.schema, "votes")
	posts := pgIdent(s.schema, "posts")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters; set_config(..., true) is equivalent.
		if _, err := tx.Exec(ctx,
			`SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds()),
		); err != nil {
			return Result{}, err
		}
	}

	outcome := OutcomeInserted

	var ignored bool
	err = tx.QueryRow(ctx,
		`INSERT INTO `+votes+` (user_id, post_id, vote)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, post_id) DO NOTHING
		 RETURNING vote`,
		in.UserID, in.PostID, in.Up,
	).Scan(&ignored)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		outcome, err = s.existing(ctx, tx, votes, in)
		if err != nil {
			return Result{}, err
		}
	default:
		return Result{}, pgMapFK(op, err)
	}

	var total int64
	if outcome == OutcomeUnchanged {
		err = tx.QueryRow(ctx,
			`SELECT votes FROM `+posts+` WHERE post_id = $1`,
			in.PostID,
		).Scan(&total)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE `+posts+` SET votes = votes + $1 WHERE post_id = $2 RETURNING votes`,
			delta(outcome, in.Up), in.PostID,
		).Scan(&total)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, OpError{Op: op, Kind: ErrPostNotFound}
		}
		return Result{}, err
	}

	if outcome == OutcomeUnchanged {
		// Read-only path; the deferred rollback releases the row lock.
		return Result{PostID: in.PostID, Votes: total, Outcome: outcome}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, dbretry.Commit(err)
	}
	return Result{PostID: in.PostID, Votes: total, Outcome: outcome}, nil
}

// existing handles a cast for a pair that already has a ledger row.
func (s *PostgresStore) existing(ctx context.Context, tx pgx.Tx, votes string, in CastInput) (Outcome, error) {
	const op = "vote.Cast"

	var stored bool
	err := tx.QueryRow(ctx,
		`SELECT vote FROM `+votes+` WHERE user_id = $1 AND post_id = $2 FOR UPDATE`,
		in.UserID, in.PostID,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row vanished between the conflict and the lock: the post
			// was deleted and the ledger cascaded.
			return "", OpError{Op: op, Kind: ErrPostNotFound}
		}
		return "", err
	}

	switch {
	case !in.AllowToggle:
		return "", OpError{Op: op, Kind: ErrAlreadyVoted}
	case stored == in.Up:
		return OutcomeUnchanged, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+votes+` SET vote = $3 WHERE user_id = $1 AND post_id = $2`,
		in.UserID, in.PostID, in.Up,
	); err != nil {
		return "", err
	}
	return OutcomeFlipped, nil
}

// PostVotes returns the current counter of one post.
func (s *PostgresStore) PostVotes(ctx context.Context, postID int64) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT votes FROM `+pgIdent(s.schema, "posts")+` WHERE post_id = $1`,
		postID,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, OpError{Op: "vote.PostVotes", Kind: ErrPostNotFound}
		}
		return 0, err
	}
	return total, nil
}

// ---- helpers ----

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// pgMapFK maps foreign key violations on the ledger insert. Anything else is
// returned unchanged so the retry layer can classify it.
func pgMapFK(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" { // foreign_key_violation
		return err
	}

	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case c == "fk_votes_post" || strings.Contains(c, "post"):
		return OpError{Op: op, Kind: ErrPostNotFound}
	default:
		return OpError{Op: op, Kind: ErrIntegrity, Msg: "unknown user"}
	}
}
