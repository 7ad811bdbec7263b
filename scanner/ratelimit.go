package scanner

import (
	"context"
	"sync"
	"time"
)

const (
	historySize      = 100
	historyThreshold = 10
	factorScale      = 1.2
	factorFloor      = 0.5
	factorCeil       = 2.0
)

// AdaptiveLimiter paces probe emission between techniques. The base
// interval is 1/maxRate; once enough delay history accumulates, the
// interval stretches or shrinks with observed pacing, clamped to
// [0.5, 2.0] of the base. The hard packets/second cap on raw emission
// lives in the probe engine; this limiter only self-dampens the scan.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	maxRate int
	factor  float64
	history []time.Duration // ring of the last 100 delays
	next    int
	full    bool
}

// NewAdaptiveLimiter returns a limiter for maxRate probes/second.
func NewAdaptiveLimiter(maxRate int) *AdaptiveLimiter {
	if maxRate <= 0 {
		maxRate = defaultMaxRate
	}
	return &AdaptiveLimiter{
		maxRate: maxRate,
		factor:  1.0,
		history: make([]time.Duration, 0, historySize),
	}
}

// Delay computes the next pacing delay and records it in the history.
func (l *AdaptiveLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.history) >= historyThreshold {
		avg := l.average().Seconds()
		f := avg * factorScale
		if f < factorFloor {
			f = factorFloor
		}
		if f > factorCeil {
			f = factorCeil
		}
		l.factor = f
	}

	base := float64(time.Second) / float64(l.maxRate)
	d := time.Duration(base * l.factor)
	l.record(d)
	return d
}

// Wait sleeps for the computed delay, honoring cancellation.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	d := l.Delay()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Factor returns the current adaptation factor.
func (l *AdaptiveLimiter) Factor() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.factor
}

func (l *AdaptiveLimiter) record(d time.Duration) {
	if len(l.history) < historySize {
		l.history = append(l.history, d)
		return
	}
	l.history[l.next] = d
	l.next = (l.next + 1) % historySize
	l.full = true
}

func (l *AdaptiveLimiter) average() time.Duration {
	var sum time.Duration
	for _, d := range l.history {
		sum += d
	}
	return sum / time.Duration(len(l.history))
}
