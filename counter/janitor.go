package counter

import (
	"context"
	"time"

	"github.com/txix-open/isp-kit/log"
)

// Janitor periodically sweeps expired windows out of the in-process store
// to bound memory growth under high key cardinality. It is only useful
// for Memory; the redis store expires keys on its own.
type Janitor struct {
	store    *Memory
	interval time.Duration
	logger   log.Logger
}

func NewJanitor(store *Memory, interval time.Duration, logger log.Logger) Janitor {
	return Janitor{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

func (j Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := j.store.SweepExpired()
			if removed > 0 {
				j.logger.Debug(ctx, "janitor: swept expired rate limit windows",
					log.Int("removed", removed),
					log.Int("remaining", j.store.Len()),
				)
			}
		}
	}
}
