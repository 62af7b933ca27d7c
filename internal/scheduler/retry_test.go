package scheduler

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: 2 * time.Second, Max: 10 * time.Second, MaxAttempts: 5}

	tests := []struct {
		attempt int
		want    time.Duration
		ok      bool
	}{
		{attempt: 0, ok: false},
		{attempt: 1, want: 2 * time.Second, ok: true},
		{attempt: 2, want: 4 * time.Second, ok: true},
		{attempt: 3, want: 8 * time.Second, ok: true},
		{attempt: 4, want: 10 * time.Second, ok: true},
		{attempt: 5, want: 10 * time.Second, ok: true},
		{attempt: 6, ok: false},
	}

	for _, tt := range tests {
		got, ok := b.NextDelay(tt.attempt)
		if ok != tt.ok || got != tt.want {
			t.Errorf("NextDelay(%d) = (%v, %v), want (%v, %v)", tt.attempt, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNoRetry(t *testing.T) {
	if _, ok := (NoRetry{}).NextDelay(1); ok {
		t.Error("NoRetry should never retry")
	}
}
