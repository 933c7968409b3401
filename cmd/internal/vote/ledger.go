package vote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"forum/cmd/internal/storage/dbretry"
)

// DefaultTxTimeout caps one cast attempt, including lock waits.
const DefaultTxTimeout = 5 * time.Second

// Notifier receives the new total after every successful cast that changed it.
// Implementations must not block.
type Notifier interface {
	PublishVotes(postID, votes int64)
}

// Recorder receives cast outcomes for metrics.
type Recorder interface {
	VoteResult(result string)
	VoteRetry()
}

// Ledger is the entry point for casting votes.
type Ledger struct {
	store     Store
	txTimeout time.Duration
	retry     dbretry.Policy
	notify    Notifier
	rec       Recorder
	log       *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithTxTimeout sets the per-attempt transaction cap. Non-positive keeps the default.
func WithTxTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.txTimeout = d
		}
	}
}

// WithRetryPolicy overrides the retry policy. The OnRetry hook is owned by the Ledger.
func WithRetryPolicy(p dbretry.Policy) LedgerOption {
	return func(l *Ledger) { l.retry = p }
}

func WithNotifier(n Notifier) LedgerOption { return func(l *Ledger) { l.notify = n } }

func WithRecorder(r Recorder) LedgerOption { return func(l *Ledger) { l.rec = r } }

func WithLogger(lg *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if lg != nil {
			l.log = lg
		}
	}
}

// NewLedger constructs a Ledger over store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:     store,
		txTimeout: DefaultTxTimeout,
		retry:     dbretry.Once(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// CastVote records a vote and returns the post's new total.
//
// Reasons: ErrAlreadyVoted, ErrPostNotFound. A transient storage error is
// retried once with a fresh transaction; anything left over is internal.
func (l *Ledger) CastVote(ctx context.Context, userID, postID int64, isUpvote, allowToggle bool) (int64, error) {
	const op = "vote.CastVote"

	if userID <= 0 {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid user_id"}
	}
	if postID <= 0 {
		return 0, OpError{Op: op, Kind: ErrPostNotFound}
	}

	in := CastInput{UserID: userID, PostID: postID, Up: isUpvote, AllowToggle: allowToggle}

	policy := l.retry
	policy.OnRetry = func(err error) {
		l.log.Warn("vote.cast.retry", "user_id", userID, "post_id", postID, "err", err)
		if l.rec != nil {
			l.rec.VoteRetry()
		}
	}

	res, err := dbretry.Operation(ctx, policy, func(ctx context.Context) (Result, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, l.txTimeout)
		defer cancel()
		return l.store.Cast(attemptCtx, in)
	})
	if err != nil {
		l.record(resultLabel(err))
		switch {
		case errors.Is(err, ErrAlreadyVoted), errors.Is(err, ErrPostNotFound):
		default:
			l.log.Error("vote.cast.fail", "user_id", userID, "post_id", postID, "err", err)
		}
		return 0, err
	}

	l.record(string(res.Outcome))
	if res.Outcome != OutcomeUnchanged && l.notify != nil {
		l.notify.PublishVotes(res.PostID, res.Votes)
	}
	return res.Votes, nil
}

// Total returns a post's current counter.
func (l *Ledger) Total(ctx context.Context, postID int64) (int64, error) {
	if postID <= 0 {
		return 0, OpError{Op: "vote.Total", Kind: ErrPostNotFound}
	}
	return l.store.PostVotes(ctx, postID)
}

func (l *Ledger) record(result string) {
	if l.rec != nil {
		l.rec.VoteResult(result)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrPostNotFound):
		return "post_not_found"
	default:
		return "error"
	}
}
