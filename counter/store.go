package counter

import (
	"context"
	"time"
)

type Result struct {
	Count   int64
	ResetAt time.Time
}

// Store is a windowed counter backend. Increment atomically adds one to the
// counter for key, starting a new fixed window if none is active, and returns
// the new count together with the moment the active window ends.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
}
