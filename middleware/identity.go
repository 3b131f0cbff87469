package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"admission-service/request"
)

// IdentityFunc maps a request to the string identity a rate limit policy
// keys its windows by. The function is selected per policy at startup and
// injected into the admission middleware.
type IdentityFunc func(ctx *request.Context) (string, error)

// IpIdentity keys windows by caller address, for unauthenticated policies.
func IpIdentity() IdentityFunc {
	return func(ctx *request.Context) (string, error) {
		return ClientIp(ctx.Request()), nil
	}
}

// UserIdentity keys windows by authenticated user id.
func UserIdentity() IdentityFunc {
	return func(ctx *request.Context) (string, error) {
		authData, err := ctx.GetAuthData()
		if err != nil {
			return "", errors.WithMessage(err, "identity: get auth data")
		}
		return authData.UserId, nil
	}
}

// ClientIp resolves the caller address: X-Real-IP, then the first hop of
// X-Forwarded-For, then the connection's remote address.
func ClientIp(req *http.Request) string {
	ip := strings.TrimSpace(req.Header.Get("X-Real-IP"))
	if ip != "" {
		return ip
	}

	forwarded := req.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		first = strings.TrimSpace(first)
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
