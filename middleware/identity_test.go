package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"admission-service/domain"
	"admission-service/middleware"
	"admission-service/request"
)

func TestClientIp(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:3451"
	require.EqualValues("192.0.2.1", middleware.ClientIp(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.EqualValues("203.0.113.7", middleware.ClientIp(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.EqualValues("198.51.100.4", middleware.ClientIp(req))
}

func TestUserIdentityRequiresAuth(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := request.NewContext(req, httptest.NewRecorder(), "/")

	_, err := middleware.UserIdentity()(ctx)
	require.ErrorIs(err, domain.ErrNotAuthenticated)

	ctx.Authenticate(request.AuthData{UserId: "u1"})
	identity, err := middleware.UserIdentity()(ctx)
	require.NoError(err)
	require.EqualValues("u1", identity)
}
