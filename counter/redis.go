package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "admission:"

// Redis is a Store over a shared redis instance, for multi-replica
// deployments. Window expiry is delegated to redis TTLs, so the janitor
// must not be pointed at this store.
type Redis struct {
	cli redis.UniversalClient
	now func() time.Time
}

func NewRedis(cli redis.UniversalClient) *Redis {
	return &Redis{
		cli: cli,
		now: time.Now,
	}
}

func (s *Redis) Increment(ctx context.Context, key string, duration time.Duration) (*Result, error) {
	fullKey := keyPrefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := s.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, fullKey)
		pttl = p.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "redis pipelined incr")
	}

	count := incr.Val()
	ttl := pttl.Val()
	if ttl < 0 {
		// first hit in the window, the key has no expiry yet
		ttl = duration
		err = s.cli.ExpireNX(ctx, fullKey, duration).Err()
		if err != nil {
			return nil, errors.WithMessage(err, "redis expire nx")
		}
	}

	return &Result{
		Count:   count,
		ResetAt: s.now().Add(ttl),
	}, nil
}

func (s *Redis) Reset(ctx context.Context, key string) error {
	err := s.cli.Del(ctx, keyPrefix+key).Err()
	if err != nil {
		return errors.WithMessage(err, "redis del")
	}
	return nil
}

func (s *Redis) ClearAll(ctx context.Context) error {
	iter := s.cli.Scan(ctx, 0, fmt.Sprintf("%s*", keyPrefix), 0).Iterator()
	for iter.Next(ctx) {
		err := s.cli.Del(ctx, iter.Val()).Err()
		if err != nil {
			return errors.WithMessage(err, "redis del")
		}
	}
	err := iter.Err()
	if err != nil {
		return errors.WithMessage(err, "redis scan")
	}
	return nil
}
