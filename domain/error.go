package domain

import (
	"github.com/pkg/errors"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnknownPolicy    = errors.New("unknown rate limit policy")
)
