// Package retry implements the layered retry policy applied to every
// stage invocation: exponential backoff for rate limits, a bounded run
// of immediate retries for other transient faults, nothing at all for
// unrecoverable errors.
package retry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"rxreader/internal/stages"
)

// Policy decides whether a failed attempt should be retried and after
// what delay. Rate-limit and transient budgets are tracked separately,
// so a stage that alternates between the two failure classes still gets
// the full budget for each.
type Policy struct {
	// MaxRateLimitRetries is the attempt ceiling for rate-limited errors.
	MaxRateLimitRetries int
	// MaxTransientRetries is the flat retry count for other transient errors.
	MaxTransientRetries int
	// BaseDelay is the first rate-limit backoff; it doubles each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
}

// Default mirrors the deployment defaults: three backoff retries for
// rate limits starting at two seconds capped at a minute, and three
// immediate retries for everything else transient.
func Default() Policy {
	return Policy{
		MaxRateLimitRetries: 3,
		MaxTransientRetries: 3,
		BaseDelay:           2 * time.Second,
		MaxDelay:            time.Minute,
	}
}

// Next reports whether a retry is allowed for the given per-class attempt
// number (1-indexed: attempt 1 is the first retry) and the delay to wait
// before it.
func (p Policy) Next(attempt int, kind stages.ErrorKind) (bool, time.Duration) {
	switch kind {
	case stages.KindRateLimited:
		if attempt > p.MaxRateLimitRetries {
			return false, 0
		}
		d := p.BaseDelay << (attempt - 1)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
		return true, d
	case stages.KindTransient:
		if attempt > p.MaxTransientRetries {
			return false, 0
		}
		return true, 0
	default:
		return false, 0
	}
}

// Do runs fn under the policy. It returns the first unrecoverable error,
// or the last error once the budget for its class is exhausted. Backoff
// delays honor context cancellation.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	rateLimited := 0
	transient := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind := stages.KindOf(err)
		var attempt int
		switch kind {
		case stages.KindRateLimited:
			rateLimited++
			attempt = rateLimited
		case stages.KindTransient:
			transient++
			attempt = transient
		default:
			return err
		}

		ok, delay := p.Next(attempt, kind)
		if !ok {
			log.WithFields(log.Fields{"op": op, "kind": kind.String(), "attempts": attempt}).
				Warn("retry budget exhausted")
			return err
		}
		log.WithFields(log.Fields{"op": op, "kind": kind.String(), "attempt": attempt, "delay": delay.String()}).
			Info("retrying stage call")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
