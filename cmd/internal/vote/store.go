package vote

import "context"

// Outcome says what a successful cast did to the ledger.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeFlipped   Outcome = "flipped"
	OutcomeUnchanged Outcome = "unchanged"
)

// CastInput is one vote request.
type CastInput struct {
	UserID      int64
	PostID      int64
	Up          bool
	AllowToggle bool
}

// Result is the post total after a cast.
type Result struct {
	PostID  int64
	Votes   int64
	Outcome Outcome
}

// delta is the counter change for an outcome in the requested direction.
func delta(o Outcome, up bool) int64 {
	var d int64
	switch o {
	case OutcomeInserted:
		d = 1
	case OutcomeFlipped:
		d = 2
	default:
		return 0
	}
	if !up {
		d = -d
	}
	return d
}

// Store is the vote persistence boundary.
//
// Contract for Cast, executed as one atomic unit per call:
//   - no row for (user, post): insert it, counter += ±1
//   - row exists and !AllowToggle: ErrAlreadyVoted, nothing written
//   - row exists, AllowToggle, same direction: nothing written, current total
//   - row exists, AllowToggle, other direction: flip in place, counter += ±2
//   - post missing: ErrPostNotFound, nothing written
type Store interface {
	Cast(ctx context.Context, in CastInput) (Result, error)
	PostVotes(ctx context.Context, postID int64) (int64, error)
}
