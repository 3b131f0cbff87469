package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/requestid"

	"admission-service/httperrors"
	"admission-service/request"
)

const (
	requestIdHeader = "x-request-id"
	userIdHeader    = "x-user-id"
)

type HttpHostManager interface {
	Next() (string, error)
}

// Http forwards admitted requests to the upstream module owning the
// protected operation. The admission layer never executes the operation
// itself, it only decides and forwards.
type Http struct {
	hostManager HttpHostManager
	skipAuth    bool
	timeout     time.Duration
}

func NewHttp(hostManager HttpHostManager, skipAuth bool, timeout time.Duration) Http {
	return Http{
		hostManager: hostManager,
		skipAuth:    skipAuth,
		timeout:     timeout,
	}
}

func (p Http) Handle(ctx *request.Context) error {
	host, err := p.hostManager.Next()
	if err != nil {
		return errors.WithMessage(err, "http: next host")
	}

	rawUrl := fmt.Sprintf("http://%s", host)
	target, err := url.Parse(rawUrl)
	if err != nil {
		return errors.WithMessage(err, "http: parse url")
	}

	req := ctx.Request()
	req.URL.Path = ctx.Endpoint()
	err = p.setHttpHeaders(ctx, req.Header)
	if err != nil {
		return err
	}

	reverseProxy := httputil.NewSingleHostReverseProxy(target)
	var resultError error
	reverseProxy.ErrorHandler = func(writer http.ResponseWriter, request *http.Request, err error) {
		resultError = httperrors.New(
			http.StatusServiceUnavailable,
			"upstream is not available",
			errors.WithMessagef(err, "http proxy to %s", host),
		)
	}

	proxyCtx, cancel := context.WithTimeout(req.Context(), p.timeout)
	defer cancel()
	req = req.WithContext(proxyCtx)
	reverseProxy.ServeHTTP(ctx.ResponseWriter(), req)

	return resultError
}

func (p Http) setHttpHeaders(ctx *request.Context, header http.Header) error {
	header.Set(requestIdHeader, requestid.FromContext(ctx.Context()))
	if p.skipAuth {
		return nil
	}

	authData, err := ctx.GetAuthData()
	if err != nil {
		return errors.WithMessage(err, "http: get auth data")
	}
	header.Set(userIdHeader, authData.UserId)

	return nil
}
