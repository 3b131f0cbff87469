package service

import (
	"context"

	"github.com/pkg/errors"

	"admission-service/domain"
)

type RateLimitChecker interface {
	Check(ctx context.Context, policyName string, identity string) (*domain.Verdict, error)
}

type QuotaChecker interface {
	CheckAndReserve(ctx context.Context, userId string) (*domain.Verdict, error)
	Commit(ctx context.Context, userId string) error
}

// Admission composes the burst limiter and the daily quota into a single
// verdict. The limiter runs first: it is the cheap path and a block there
// short-circuits without touching the quota store. A request with no user
// is burst-limited only.
type Admission struct {
	limiter RateLimitChecker
	quota   QuotaChecker
}

func NewAdmission(limiter RateLimitChecker, quota QuotaChecker) Admission {
	return Admission{
		limiter: limiter,
		quota:   quota,
	}
}

func (s Admission) Evaluate(ctx context.Context, policyName string, identity string, userId string) (*domain.Verdict, error) {
	verdict, err := s.limiter.Check(ctx, policyName, identity)
	if err != nil {
		return nil, errors.WithMessage(err, "rate limiter check")
	}
	if !verdict.Allowed {
		return verdict, nil
	}

	if userId == "" {
		return verdict, nil
	}

	verdict, err = s.quota.CheckAndReserve(ctx, userId)
	if err != nil {
		return nil, errors.WithMessage(err, "quota check and reserve")
	}
	return verdict, nil
}

// Commit charges one unit of the user's daily quota. Called by the
// transport layer after the protected operation succeeded.
func (s Admission) Commit(ctx context.Context, userId string) error {
	err := s.quota.Commit(ctx, userId)
	if err != nil {
		return errors.WithMessage(err, "quota commit")
	}
	return nil
}
