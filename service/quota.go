package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"

	"admission-service/domain"
	"admission-service/entity"
)

const dateLayout = "2006-01-02"

type QuotaRepo interface {
	GetOrCreate(ctx context.Context, userId string, date string) (*entity.DailyQuota, error)
	Increment(ctx context.Context, quotaId int64) (*entity.DailyQuota, error)
}

type PlanRepo interface {
	GetPlanForUser(ctx context.Context, userId string) (*entity.PlanTier, error)
}

// Quota enforces the plan-scoped daily allowance. The quota boundary is
// midnight UTC: the daily row is keyed by calendar date, so rollover needs
// no reset job.
//
// Check and commit are deliberately separate. The protected operation may
// fail after admission, and usage is charged only on success. Concurrent
// in-flight requests for one user can therefore briefly overshoot the last
// remaining unit; that race is accepted and bounded by the in-flight count.
type Quota struct {
	quotas  QuotaRepo
	plans   PlanRepo
	timeout time.Duration
	logger  log.Logger
	now     func() time.Time
}

func NewQuota(quotas QuotaRepo, plans PlanRepo, timeout time.Duration, logger log.Logger) Quota {
	return Quota{
		quotas:  quotas,
		plans:   plans,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckAndReserve reports whether the user may spend one more unit of the
// daily allowance. The quota store and billing are consulted on every call,
// a plan change takes effect on the next request. If either collaborator is
// unreachable the check fails closed: quota errors have billing implications,
// the opposite policy from the burst limiter.
func (s Quota) CheckAndReserve(ctx context.Context, userId string) (*domain.Verdict, error) {
	now := s.now().UTC()
	resetAt := nextMidnight(now)

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	plan, err := s.plans.GetPlanForUser(storeCtx, userId)
	if err != nil {
		s.logger.Error(ctx, errors.WithMessagef(err, "quota: plan lookup unavailable, denying user '%s'", userId))
		return s.failClosed(resetAt, now), nil
	}

	quota, err := s.quotas.GetOrCreate(storeCtx, userId, now.Format(dateLayout))
	if err != nil {
		s.logger.Error(ctx, errors.WithMessagef(err, "quota: quota store unavailable, denying user '%s'", userId))
		return s.failClosed(resetAt, now), nil
	}

	if quota.UsedCount >= plan.DailyLimit {
		return domain.BlockedVerdict(
			domain.ReasonQuotaExceeded,
			plan.DailyLimit,
			resetAt,
			resetAt.Sub(now),
		), nil
	}

	return domain.AllowedVerdict(plan.DailyLimit, plan.DailyLimit-quota.UsedCount, resetAt), nil
}

// Commit records one unit of usage after the protected operation succeeded.
func (s Quota) Commit(ctx context.Context, userId string) error {
	now := s.now().UTC()

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	quota, err := s.quotas.GetOrCreate(storeCtx, userId, now.Format(dateLayout))
	if err != nil {
		return errors.WithMessage(err, "quota get or create")
	}

	_, err = s.quotas.Increment(storeCtx, quota.Id)
	if err != nil {
		return errors.WithMessage(err, "quota increment")
	}

	return nil
}

func (s Quota) failClosed(resetAt time.Time, now time.Time) *domain.Verdict {
	// the real limit is unknown while the store is down, report zero so the
	// blocked caller still gets parseable headers
	return domain.BlockedVerdict(domain.ReasonQuotaExceeded, 0, resetAt, resetAt.Sub(now))
}

func nextMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, time.UTC)
}
