package engine

import (
	"context"
	"time"
)

// Clock is the time source of the loop; tests swap it for a fake that never blocks.
type Clock interface {
	Now() time.Time
	// Sleep waits d and reports false if ctx ended first.
	Sleep(ctx context.Context, d time.Duration) bool
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
