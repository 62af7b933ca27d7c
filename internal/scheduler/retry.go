package scheduler

import "time"

// RetryPolicy decides whether a failed push is retried automatically.
// attempt starts at 1 for the first retry after a failure.
type RetryPolicy interface {
	NextDelay(attempt int) (time.Duration, bool)
}

// NoRetry leaves a failed push in the Error state until the next
// qualifying change or a manual trigger.
type NoRetry struct{}

func (NoRetry) NextDelay(int) (time.Duration, bool) { return 0, false }

// ExponentialBackoff retries a failed push with doubling delays capped at
// Max, at most MaxAttempts times.
type ExponentialBackoff struct {
	Initial     time.Duration // first retry delay (ex: 2s)
	Max         time.Duration // cap between retries (ex: 60s)
	MaxAttempts int           // give up after this many retries, 0 = never retry
}

func (b ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > b.MaxAttempts || b.Initial <= 0 {
		return 0, false
	}
	wait := b.Initial
	for i := 1; i < attempt; i++ {
		wait *= 2
		if b.Max > 0 && wait >= b.Max {
			return b.Max, true
		}
	}
	if b.Max > 0 && wait > b.Max {
		wait = b.Max
	}
	return wait, true
}
