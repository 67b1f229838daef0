package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/logging"
)

const (
	DefaultAttempts = 3
	// MaxAttempts bounds every policy, including explicit overrides.
	MaxAttempts     = 3
	DefaultBackoff  = 2 * time.Second
)

// Policy retries retryable *creative.ServiceError failures with a linear
// backoff. It runs in the caller's goroutine, so a worker keeps its slot.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = DefaultAttempts
	}
	p.Attempts = min(p.Attempts, MaxAttempts)
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	if p.Logger == nil {
		p.Logger = logging.Discard()
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. op names the call in log lines.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !Retryable(err) || attempt == p.Attempts {
			break
		}

		wait := p.Backoff * time.Duration(attempt)
		p.Logger.Warn("upstream call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "err", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func Retryable(err error) bool {
	var se *creative.ServiceError
	return errors.As(err, &se) && se.Retryable()
}
