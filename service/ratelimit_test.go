package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/txix-open/isp-kit/log"

	"admission-service/conf"
	"admission-service/counter"
	"admission-service/domain"
)

type stubStore struct {
	result *counter.Result
	err    error
	calls  int
}

func (s *stubStore) Increment(ctx context.Context, key string, window time.Duration) (*counter.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubStore) Reset(ctx context.Context, key string) error {
	return s.err
}

func (s *stubStore) ClearAll(ctx context.Context) error {
	return s.err
}

func testLogger(t *testing.T) *log.Adapter {
	t.Helper()

	logger, err := log.New(log.WithLevel(log.FatalLevel))
	require.NoError(t, err)
	return logger
}

func testPolicies() []conf.RateLimitPolicy {
	return []conf.RateLimitPolicy{
		{Name: "transform", MaxRequests: 5, WindowSeconds: 60, IdentitySource: conf.IdentitySourceIp},
		{Name: "blocked", MaxRequests: 0, WindowSeconds: 60, IdentitySource: conf.IdentitySourceIp},
	}
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	for expected := int64(4); expected >= 0; expected-- {
		verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
		require.NoError(err)
		require.True(verdict.Allowed)
		require.EqualValues(domain.ReasonOk, verdict.Reason)
		require.EqualValues(5, verdict.Limit)
		require.EqualValues(expected, verdict.Remaining)
	}

	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)
	require.False(verdict.Allowed)
	require.EqualValues(domain.ReasonRateLimited, verdict.Reason)
	require.EqualValues(0, verdict.Remaining)
	require.Greater(verdict.RetryAfter, time.Duration(0))
	require.LessOrEqual(verdict.RetryAfter, time.Minute)
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
		require.NoError(err)
	}

	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.8")
	require.NoError(err)
	require.True(verdict.Allowed)
	require.EqualValues(4, verdict.Remaining)
}

func TestRateLimiterWindowRollover(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := NewRateLimiter(counter.NewMemoryWithClock(clock), testPolicies(), time.Second, testLogger(t))
	limiter.now = clock

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
		require.NoError(err)
	}

	now = now.Add(61 * time.Second)

	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)
	require.True(verdict.Allowed)
	require.EqualValues(4, verdict.Remaining)
}

func TestRateLimiterRejectedRequestStillCounts(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	store := counter.NewMemory()
	limiter := NewRateLimiter(store, testPolicies(), time.Second, testLogger(t))

	for i := 0; i < 8; i++ {
		_, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
		require.NoError(err)
	}

	// 8 checks happened, 3 of them blocked, all 8 consumed a slot
	result, err := store.Increment(context.Background(), "transform:203.0.113.7", time.Minute)
	require.NoError(err)
	require.EqualValues(9, result.Count)
}

func TestRateLimiterZeroLimitAlwaysBlocks(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	verdict, err := limiter.Check(context.Background(), "blocked", "203.0.113.7")
	require.NoError(err)
	require.False(verdict.Allowed)
	require.EqualValues(domain.ReasonRateLimited, verdict.Reason)
	require.EqualValues(0, verdict.Limit)
	require.EqualValues(0, verdict.Remaining)
}

func TestRateLimiterUnknownPolicy(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	_, err := limiter.Check(context.Background(), "missing", "203.0.113.7")
	require.ErrorIs(err, domain.ErrUnknownPolicy)
}

func TestRateLimiterFailOpen(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	store := &stubStore{err: errors.New("connection refused")}
	limiter := NewRateLimiter(store, testPolicies(), time.Second, testLogger(t))

	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)
	require.True(verdict.Allowed)
	require.EqualValues(domain.ReasonOk, verdict.Reason)
	require.EqualValues(-1, verdict.Limit)
}

func TestRateLimiterBoundaryTieAllows(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &stubStore{result: &counter.Result{Count: 100, ResetAt: now}}
	limiter := NewRateLimiter(store, testPolicies(), time.Second, testLogger(t))
	limiter.now = func() time.Time { return now }

	// count is over the limit but the window ends exactly now:
	// the caller must not stay blocked on the boundary
	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)
	require.True(verdict.Allowed)
}

func TestRateLimiterReset(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
		require.NoError(err)
	}

	err := limiter.Reset(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)

	verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
	require.NoError(err)
	require.True(verdict.Allowed)
	require.EqualValues(4, verdict.Remaining)
}

func TestRateLimiterConcurrentExactSplit(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := NewRateLimiter(counter.NewMemory(), testPolicies(), time.Second, testLogger(t))

	const requests = 20
	verdicts := make([]*domain.Verdict, requests)
	wg := sync.WaitGroup{}
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdict, err := limiter.Check(context.Background(), "transform", "203.0.113.7")
			require.NoError(err)
			verdicts[i] = verdict
		}(i)
	}
	wg.Wait()

	allowed := 0
	blocked := 0
	for _, verdict := range verdicts {
		if verdict.Allowed {
			allowed++
		} else {
			blocked++
		}
	}
	require.EqualValues(5, allowed)
	require.EqualValues(15, blocked)
}
