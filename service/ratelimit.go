package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"

	"admission-service/conf"
	"admission-service/counter"
	"admission-service/domain"
)

// RateLimiter enforces per-policy fixed windows over a counter store.
//
// The store call always happens, even for requests that end up blocked:
// a rejected request still costs one slot in the window.
type RateLimiter struct {
	store    counter.Store
	policies map[string]conf.RateLimitPolicy
	timeout  time.Duration
	logger   log.Logger
	now      func() time.Time
}

func NewRateLimiter(
	store counter.Store,
	policies []conf.RateLimitPolicy,
	timeout time.Duration,
	logger log.Logger,
) RateLimiter {
	byName := make(map[string]conf.RateLimitPolicy)
	for _, policy := range policies {
		byName[policy.Name] = policy
	}
	return RateLimiter{
		store:    store,
		policies: byName,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

func (s RateLimiter) Check(ctx context.Context, policyName string, identity string) (*domain.Verdict, error) {
	policy, ok := s.policies[policyName]
	if !ok {
		return nil, errors.WithMessagef(domain.ErrUnknownPolicy, "policy '%s'", policyName)
	}

	window := time.Duration(policy.WindowSeconds) * time.Second
	key := s.key(policyName, identity)

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.store.Increment(storeCtx, key, window)
	if err != nil {
		// fail open: burst limiting protects capacity, not billing,
		// so an unreachable counter store must not take traffic down
		s.logger.Error(ctx, errors.WithMessagef(err, "rate limiter: counter store unavailable, allowing '%s'", key))
		return domain.UnlimitedVerdict(), nil
	}

	now := s.now()
	if result.Count > policy.MaxRequests {
		if !result.ResetAt.After(now) {
			// boundary tie: the window ended this very instant, the next
			// increment starts a fresh one, so nobody stays blocked
			return domain.AllowedVerdict(policy.MaxRequests, 0, result.ResetAt), nil
		}
		return domain.BlockedVerdict(
			domain.ReasonRateLimited,
			policy.MaxRequests,
			result.ResetAt,
			result.ResetAt.Sub(now),
		), nil
	}

	return domain.AllowedVerdict(policy.MaxRequests, policy.MaxRequests-result.Count, result.ResetAt), nil
}

// Reset drops the window for one (policy, identity) key. Operational
// escape hatch, not exposed to end users.
func (s RateLimiter) Reset(ctx context.Context, policyName string, identity string) error {
	err := s.store.Reset(ctx, s.key(policyName, identity))
	if err != nil {
		return errors.WithMessage(err, "counter store reset")
	}
	return nil
}

// ClearAll drops every tracked window.
func (s RateLimiter) ClearAll(ctx context.Context) error {
	err := s.store.ClearAll(ctx)
	if err != nil {
		return errors.WithMessage(err, "counter store clear all")
	}
	return nil
}

// Policies returns the configured policy table, for the admin status endpoint.
func (s RateLimiter) Policies() []conf.RateLimitPolicy {
	policies := make([]conf.RateLimitPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		policies = append(policies, policy)
	}
	return policies
}

func (s RateLimiter) key(policyName string, identity string) string {
	return fmt.Sprintf("%s:%s", policyName, identity)
}
