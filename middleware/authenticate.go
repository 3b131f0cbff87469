package middleware

import (
	"net/http"

	"github.com/pkg/errors"

	"admission-service/httperrors"
	"admission-service/request"
)

const (
	userIdHeader = "x-user-id"
)

// Authenticate trusts the identity headers stamped by the product's auth
// edge in front of this service. Session and token mechanics live there,
// not here.
func Authenticate() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			userId := ctx.Param(userIdHeader)
			if userId == "" {
				return httperrors.New(
					http.StatusUnauthorized,
					"user identity required",
					errors.New("authenticate: user identity required"),
				)
			}

			ctx.Authenticate(request.AuthData{UserId: userId})

			return next.Handle(ctx)
		})
	}
}
