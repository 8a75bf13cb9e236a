package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxPollBackoff = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// retryDelay is the wait before attempt n of a row: 2s doubling up to 5m.
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// nextBackoff doubles the poll wait after a failed batch.
func nextBackoff(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, maxPollBackoff)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
