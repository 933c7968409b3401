package vote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum/cmd/internal/storage/dbretry"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events [][2]int64
}

func (n *recordingNotifier) PublishVotes(postID, votes int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, [2]int64{postID, votes})
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
	retries int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{results: make(map[string]int)}
}

func (r *countingRecorder) VoteResult(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result]++
}

func (r *countingRecorder) VoteRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func fastRetry() dbretry.Policy {
	p := dbretry.Once()
	p.InitialInterval = time.Millisecond
	p.MaxInterval = time.Millisecond
	return p
}

func TestCastVote_ExampleSequence(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	st.SeedPost(1, 0)
	l := NewLedger(st)
	ctx := context.Background()

	const userA, userB = 10, 20

	got, err := l.CastVote(ctx, userA, 1, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = l.CastVote(ctx, userB, 1, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = l.CastVote(ctx, userA, 1, false, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = l.CastVote(ctx, userA, 1, true, false)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	total, err := l.Total(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Equal(t, 2, st.VoteRows(1))
}

func TestCastVote_AlreadyVotedLeavesCounter(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	st.SeedPost(7, 41)
	l := NewLedger(st)
	ctx := context.Background()

	got, err := l.CastVote(ctx, 1, 7, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = l.CastVote(ctx, 1, 7, false, false)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	total, err := l.Total(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
	assert.Equal(t, 1, st.VoteRows(7))
}

func TestCastVote_ToggleFlipsOnlyOnDirectionChange(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	st.SeedPost(3, 5)
	n := &recordingNotifier{}
	l := NewLedger(st, WithNotifier(n))
	ctx := context.Background()

	got, err := l.CastVote(ctx, 1, 3, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	// Same direction: idempotent.
	got, err = l.CastVote(ctx, 1, 3, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	got, err = l.CastVote(ctx, 1, 3, false, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	got, err = l.CastVote(ctx, 1, 3, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	assert.Equal(t, 1, st.VoteRows(3), "a toggle must never add a second row")

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, [][2]int64{{3, 6}, {3, 4}, {3, 6}}, n.events, "unchanged casts are not published")
}

func TestCastVote_PostNotFound(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	rec := newCountingRecorder()
	l := NewLedger(st, WithRecorder(rec))
	ctx := context.Background()

	_, err := l.CastVote(ctx, 1, 99, true, false)
	require.ErrorIs(t, err, ErrPostNotFound)

	_, err = l.CastVote(ctx, 1, 0, true, false)
	require.ErrorIs(t, err, ErrPostNotFound)

	_, err = l.CastVote(ctx, 0, 1, true, false)
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, 0, st.VoteRows(99))
	assert.Equal(t, 1, rec.results["post_not_found"])
}

func TestCastVote_ConcurrentFirstVotes(t *testing.T) {
	t.Parallel()

	const (
		start = int64(100)
		n     = 64
	)

	st := NewInMemoryStore()
	st.SeedPost(1, start)
	l := NewLedger(st)

	p := pool.New().WithErrors().WithContext(context.Background())
	for i := 1; i <= n; i++ {
		userID := int64(i)
		p.Go(func(ctx context.Context) error {
			_, err := l.CastVote(ctx, userID, 1, true, false)
			return err
		})
	}
	require.NoError(t, p.Wait())

	total, err := l.Total(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, start+n, total)
	assert.Equal(t, n, st.VoteRows(1))
}

func TestCastVote_ConcurrentSamePair(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	st.SeedPost(1, 0)
	l := NewLedger(st)

	var (
		mu      sync.Mutex
		ok      int
		already int
	)
	p := pool.New().WithErrors()
	for i := 0; i < 32; i++ {
		p.Go(func() error {
			_, err := l.CastVote(context.Background(), 5, 1, true, false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyVoted):
				already++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, p.Wait())

	assert.Equal(t, 1, ok)
	assert.Equal(t, 31, already)

	total, err := l.Total(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, 1, st.VoteRows(1))
}

// flakyStore fails the first failures calls with err.
type flakyStore struct {
	Store
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakyStore) Cast(ctx context.Context, in CastInput) (Result, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return Result{}, f.err
	}
	return f.Store.Cast(ctx, in)
}

func TestCastVote_RetriesTransientOnce(t *testing.T) {
	t.Parallel()

	mem := NewInMemoryStore()
	mem.SeedPost(1, 0)
	fs := &flakyStore{Store: mem, failures: 1, err: &pgconn.PgError{Code: "40001"}}
	rec := newCountingRecorder()
	l := NewLedger(fs, WithRetryPolicy(fastRetry()), WithRecorder(rec))

	got, err := l.CastVote(context.Background(), 1, 1, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.Equal(t, 2, fs.calls)
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 1, rec.results["inserted"])
}

func TestCastVote_GivesUpAfterOneRetry(t *testing.T) {
	t.Parallel()

	mem := NewInMemoryStore()
	mem.SeedPost(1, 0)
	fs := &flakyStore{Store: mem, failures: 5, err: &pgconn.PgError{Code: "40P01"}}
	rec := newCountingRecorder()
	l := NewLedger(fs, WithRetryPolicy(fastRetry()), WithRecorder(rec))

	_, err := l.CastVote(context.Background(), 1, 1, true, false)
	require.Error(t, err)
	assert.Equal(t, 2, fs.calls)
	assert.Equal(t, 1, rec.results["error"])

	total, err := l.Total(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total, "failed casts leave no partial state")
	assert.Equal(t, 0, mem.VoteRows(1))
}

// slowStore blocks until its context is done.
type slowStore struct{ Store }

func (slowStore) Cast(ctx context.Context, _ CastInput) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestCastVote_TxTimeout(t *testing.T) {
	t.Parallel()

	l := NewLedger(slowStore{}, WithTxTimeout(20*time.Millisecond), WithRetryPolicy(fastRetry()))

	started := time.Now()
	_, err := l.CastVote(context.Background(), 1, 1, true, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}
