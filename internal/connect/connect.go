// Package connect waits for a remote backend to answer at boot, retrying
// with a capped exponential backoff.
package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// Retry bounds the connection attempts.
type Retry struct {
	Total         time.Duration // total time allowed for attempts (ex: 30s)
	Initial       time.Duration // first wait between attempts, doubles each time (ex: 2s)
	MaxWait       time.Duration // cap between attempts (ex: 10s)
	PingTimeout   time.Duration // timeout of a single attempt (ex: 5s)
	WarnThreshold int           // attempts logged at warn before escalating to error
}

// Validate rejects non-positive durations and a negative threshold.
func (r Retry) Validate() error {
	for name, d := range map[string]time.Duration{
		"ConnectTimeout": r.Total,
		"RetryInterval":  r.Initial,
		"MaxWait":        r.MaxWait,
		"PingTimeout":    r.PingTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", name, d)
		}
	}
	if r.WarnThreshold < 0 {
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", r.WarnThreshold)
	}
	return nil
}

// Pinger is a single readiness probe.
type Pinger func(ctx context.Context) error

// WaitReady pings until success, ctx cancellation or r.Total elapsing.
// backend and addr only label the logs.
func WaitReady(parent context.Context, backend, addr string, ping Pinger, r Retry, log logger.Logger) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%s connect options: %w", backend, err)
	}

	ctx, cancel := context.WithTimeout(parent, r.Total)
	defer cancel()

	fields := []logger.Field{logger.String("backend", backend), logger.String("addr", addr)}
	log.Info("connecting to remote store", append(fields, logger.Duration("timeout", r.Total))...)

	start := time.Now()
	wait := r.Initial
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, r.PingTimeout)
		err := ping(pingCtx)
		pingCancel()

		if err == nil {
			if attempt > 1 {
				log.Warn("remote store reachable after retry", append(fields,
					logger.Int("attempts", attempt),
					logger.Duration("elapsed", time.Since(start)))...)
			} else {
				log.Info("remote store reachable", fields...)
			}
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Error("remote store unavailable, giving up", append(fields,
				logger.Int("attempts", attempt),
				logger.Error(err))...)
			return fmt.Errorf("%s unavailable at %s after %d attempts (timeout: %v): %w",
				backend, addr, attempt, r.Total, err)
		case <-timer.C:
		}

		retryFields := append(fields,
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
		if attempt <= r.WarnThreshold && timeLeft(ctx) >= 10*time.Second {
			log.Warn("remote store not reachable, retrying", retryFields...)
		} else {
			log.Error("remote store still unreachable", append(retryFields,
				logger.Duration("remaining", timeLeft(ctx)))...)
		}

		wait *= 2
		if wait > r.MaxWait {
			wait = r.MaxWait
		}
	}
}

func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
