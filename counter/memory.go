package counter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count       int64
	windowStart time.Time
	duration    time.Duration
}

// Memory is an in-process Store. It is safe for concurrent use.
// Counters are lost on restart, which is acceptable for burst limiting.
type Memory struct {
	lock    sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// NewMemoryWithClock is used by tests to control window math.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     now,
	}
}

func (s *Memory) Increment(ctx context.Context, key string, duration time.Duration) (*Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	// a fresh key and an expired window follow the same path
	if !ok || !now.Before(w.windowStart.Add(w.duration)) {
		w = &window{windowStart: now, duration: duration}
		s.windows[key] = w
	}

	w.count++
	return &Result{
		Count:   w.count,
		ResetAt: w.windowStart.Add(w.duration),
	}, nil
}

func (s *Memory) Reset(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.windows, key)
	return nil
}

func (s *Memory) ClearAll(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.windows = make(map[string]*window)
	return nil
}

// SweepExpired removes windows that have fully elapsed and returns
// the number of removed entries. Called periodically by the janitor.
func (s *Memory) SweepExpired() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.windowStart.Add(w.duration)) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *Memory) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.windows)
}
