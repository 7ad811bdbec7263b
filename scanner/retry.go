package scanner

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// errNoVerdict marks a probe attempt that produced no decisive
// classification; the retry helper runs another attempt with fresh
// sequence/source-port values.
var errNoVerdict = errors.New("no verdict")

// withRetries runs attempt up to tries times, stopping early on the
// first decisive outcome. Every technique shares this policy instead of
// embedding its own loop, so retry behavior stays uniform and testable.
// The backoff between attempts is zero: pacing is the rate limiter's
// job, not the retry helper's.
func withRetries(ctx context.Context, tries int, attempt func() error) error {
	if tries < 1 {
		tries = 1
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(tries-1)),
		ctx,
	)
	return backoff.Retry(attempt, bo)
}
