package counter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/txix-open/isp-kit/log"

	"admission-service/counter"
)

func TestJanitorSweeps(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	logger, err := log.New(log.WithLevel(log.DebugLevel))
	require.NoError(err)

	store := counter.NewMemory()
	_, err = store.Increment(context.Background(), "short", 100*time.Millisecond)
	require.NoError(err)
	_, err = store.Increment(context.Background(), "long", time.Hour)
	require.NoError(err)

	janitor := counter.NewJanitor(store, 200*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = janitor.Run(ctx)
	}()

	time.Sleep(1 * time.Second)

	require.EqualValues(1, store.Len())
}

func TestJanitorStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	logger, err := log.New(log.WithLevel(log.DebugLevel))
	require.NoError(err)

	janitor := counter.NewJanitor(counter.NewMemory(), 10*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- janitor.Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(1 * time.Second):
		require.Fail("janitor did not stop after context cancellation")
	}
}
