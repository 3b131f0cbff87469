package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"

	"admission-service/domain"
	"admission-service/httperrors"
	"admission-service/request"
)

const (
	rateLimitLimitHeader     = "X-RateLimit-Limit"
	rateLimitRemainingHeader = "X-RateLimit-Remaining"
	rateLimitResetHeader     = "X-RateLimit-Reset"
	retryAfterHeader         = "Retry-After"
)

type AdmissionGate interface {
	Evaluate(ctx context.Context, policyName string, identity string, userId string) (*domain.Verdict, error)
	Commit(ctx context.Context, userId string) error
}

// Admission runs the gate in front of the protected operation and stamps
// the rate limit wire contract on the response. Usage is committed only
// after the downstream handler finished without error.
func Admission(
	gate AdmissionGate,
	policyName string,
	identify IdentityFunc,
	withQuota bool,
	blockedMessage string,
	logger log.Logger,
) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			identity, err := identify(ctx)
			if err != nil {
				return errors.WithMessage(err, "admission: resolve identity")
			}

			userId := ""
			if withQuota {
				authData, err := ctx.GetAuthData()
				if err != nil {
					return errors.WithMessage(err, "admission: get auth data")
				}
				userId = authData.UserId
			}

			verdict, err := gate.Evaluate(ctx.Context(), policyName, identity, userId)
			if err != nil {
				return errors.WithMessage(err, "admission: evaluate")
			}

			writeVerdictHeaders(ctx.ResponseWriter().Header(), verdict)

			if !verdict.Allowed {
				return httperrors.New(
					http.StatusTooManyRequests,
					blockedUserMessage(verdict, blockedMessage),
					errors.Errorf("admission: %s for '%s:%s'", verdict.Reason, policyName, identity),
				)
			}

			err = next.Handle(ctx)
			if err != nil {
				return err
			}

			if userId != "" {
				err := gate.Commit(ctx.Context(), userId)
				if err != nil {
					// the response is already on the wire, the unit stays unspent
					logger.Error(ctx.Context(), errors.WithMessagef(err, "admission: commit usage for user '%s'", userId))
				}
			}

			return nil
		})
	}
}

func writeVerdictHeaders(header http.Header, verdict *domain.Verdict) {
	if verdict.Limit < 0 {
		return
	}

	header.Set(rateLimitLimitHeader, strconv.FormatInt(verdict.Limit, 10))
	header.Set(rateLimitRemainingHeader, strconv.FormatInt(verdict.Remaining, 10))
	header.Set(rateLimitResetHeader, strconv.FormatInt(verdict.ResetAt.Unix(), 10))

	if !verdict.Allowed {
		header.Set(retryAfterHeader, strconv.Itoa(retryAfterSeconds(verdict)))
	}
}

func retryAfterSeconds(verdict *domain.Verdict) int {
	seconds := int(math.Ceil(verdict.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func blockedUserMessage(verdict *domain.Verdict, configured string) string {
	if verdict.Reason == domain.ReasonQuotaExceeded {
		return "daily rate limit has been reached"
	}
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("rate limit has been reached, try after %ds", retryAfterSeconds(verdict))
}
