package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"admission-service/domain"
)

type stubLimiter struct {
	verdict *domain.Verdict
	err     error
	calls   int
}

func (s *stubLimiter) Check(ctx context.Context, policyName string, identity string) (*domain.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type stubQuota struct {
	verdict *domain.Verdict
	err     error
	checks  int
	commits int
}

func (s *stubQuota) CheckAndReserve(ctx context.Context, userId string) (*domain.Verdict, error) {
	s.checks++
	return s.verdict, s.err
}

func (s *stubQuota) Commit(ctx context.Context, userId string) error {
	s.commits++
	return s.err
}

func TestAdmissionRateLimitedShortCircuits(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := &stubLimiter{verdict: domain.BlockedVerdict(domain.ReasonRateLimited, 5, time.Now().Add(time.Minute), time.Minute)}
	quota := &stubQuota{verdict: domain.AllowedVerdict(10, 9, time.Now())}
	admission := NewAdmission(limiter, quota)

	verdict, err := admission.Evaluate(context.Background(), "transform", "203.0.113.7", "u1")
	require.NoError(err)
	require.False(verdict.Allowed)
	require.EqualValues(domain.ReasonRateLimited, verdict.Reason)
	require.EqualValues(0, quota.checks)
}

func TestAdmissionQuotaAppliedForUser(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := &stubLimiter{verdict: domain.AllowedVerdict(5, 4, time.Now().Add(time.Minute))}
	quota := &stubQuota{verdict: domain.BlockedVerdict(domain.ReasonQuotaExceeded, 10, time.Now().Add(time.Hour), time.Hour)}
	admission := NewAdmission(limiter, quota)

	verdict, err := admission.Evaluate(context.Background(), "transform", "u1", "u1")
	require.NoError(err)
	require.False(verdict.Allowed)
	require.EqualValues(domain.ReasonQuotaExceeded, verdict.Reason)
	require.EqualValues(1, quota.checks)
}

func TestAdmissionGuestSkipsQuota(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	limiter := &stubLimiter{verdict: domain.AllowedVerdict(5, 4, time.Now().Add(time.Minute))}
	quota := &stubQuota{verdict: domain.BlockedVerdict(domain.ReasonQuotaExceeded, 10, time.Now(), time.Hour)}
	admission := NewAdmission(limiter, quota)

	verdict, err := admission.Evaluate(context.Background(), "guest", "203.0.113.7", "")
	require.NoError(err)
	require.True(verdict.Allowed)
	require.EqualValues(0, quota.checks)
}

func TestAdmissionCommitDelegates(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	quota := &stubQuota{}
	admission := NewAdmission(&stubLimiter{}, quota)

	err := admission.Commit(context.Background(), "u1")
	require.NoError(err)
	require.EqualValues(1, quota.commits)
}
