package vote

import (
	"context"
	"sync"
)

type pairKey struct {
	userID int64
	postID int64
}

// InMemoryStore is a dev-only fallback when the DB is not configured.
// One mutex serializes every cast, which is the in-process equivalent of
// the row locks the Postgres store relies on.
type InMemoryStore struct {
	mu    sync.Mutex
	posts map[int64]int64
	votes map[pairKey]bool
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		posts: make(map[int64]int64),
		votes: make(map[pairKey]bool),
	}
}

// SeedPost creates (or resets) a post counter.
func (s *InMemoryStore) SeedPost(postID, votes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[postID] = votes
}

// VoteRows returns how many ledger rows exist for a post.
func (s *InMemoryStore) VoteRows(postID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.votes {
		if k.postID == postID {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) Cast(ctx context.Context, in CastInput) (Result, error) {
	const op = "vote.Cast"

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, ok := s.posts[in.PostID]
	if !ok {
		return Result{}, OpError{Op: op, Kind: ErrPostNotFound}
	}

	k := pairKey{userID: in.UserID, postID: in.PostID}
	outcome := OutcomeInserted
	if stored, voted := s.votes[k]; voted {
		switch {
		case !in.AllowToggle:
			return Result{}, OpError{Op: op, Kind: ErrAlreadyVoted}
		case stored == in.Up:
			outcome = OutcomeUnchanged
		default:
			outcome = OutcomeFlipped
		}
	}

	if outcome != OutcomeUnchanged {
		s.votes[k] = in.Up
		total += delta(outcome, in.Up)
		s.posts[in.PostID] = total
	}
	return Result{PostID: in.PostID, Votes: total, Outcome: outcome}, nil
}

func (s *InMemoryStore) PostVotes(ctx context.Context, postID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, ok := s.posts[postID]
	if !ok {
		return 0, OpError{Op: "vote.PostVotes", Kind: ErrPostNotFound}
	}
	return total, nil
}
