package tests

import (
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/test"
)

type Redis struct {
	address string
	server  *miniredis.Miniredis
	redis.UniversalClient
}

func NewRedis(test *test.Test) Redis {
	server := miniredis.RunT(test.T())
	cli := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return Redis{
		UniversalClient: cli,
		server:          server,
		address:         server.Addr(),
	}
}

func (r Redis) Address() string {
	return r.address
}

func (r Redis) FastForward(d time.Duration) {
	r.server.FastForward(d)
}
