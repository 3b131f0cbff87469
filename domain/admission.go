package domain

import (
	"time"
)

const (
	ReasonOk            = "ok"
	ReasonRateLimited   = "rate_limited"
	ReasonQuotaExceeded = "quota_exceeded"
)

// Verdict is the single result of an admission check. Limit and Remaining
// are -1 when the applied limiter has no configured limit.
type Verdict struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     string
}

func AllowedVerdict(limit int64, remaining int64, resetAt time.Time) *Verdict {
	return &Verdict{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Reason:    ReasonOk,
	}
}

func UnlimitedVerdict() *Verdict {
	return &Verdict{
		Allowed:   true,
		Limit:     -1,
		Remaining: -1,
		Reason:    ReasonOk,
	}
}

func BlockedVerdict(reason string, limit int64, resetAt time.Time, retryAfter time.Duration) *Verdict {
	return &Verdict{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Reason:     reason,
	}
}
