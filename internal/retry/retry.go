// Package retry implements the explicit retry policy called for by the
// "cooperative retries -> explicit policy" redesign: a small object with a
// bounded attempt count, exponential backoff, and a classify hook, replacing
// ad-hoc retry loops scattered through callers.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/oddyssey-cycle/engine/internal/apperr"
)

// Policy governs how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Cap         time.Duration
	// Classify decides whether err is worth retrying. Defaults to
	// apperr.Classify(err) == apperr.Transient.
	Classify func(error) apperr.Category
}

// Default is a handful of attempts with doubling backoff capped at a few
// seconds, the shape used against flaky JSON-RPC endpoints.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Cap:         5 * time.Second,
	}
}

func (p Policy) classify(err error) apperr.Category {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return apperr.Classify(err)
}

// Do runs fn, retrying while the returned error classifies as Transient, up
// to MaxAttempts total attempts, sleeping with doubling backoff between
// tries. Non-transient errors and context cancellation stop retrying
// immediately. The last error is returned if all attempts are exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	backoff := p.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.classify(err) != apperr.Transient {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if p.Cap > 0 && backoff > p.Cap {
			backoff = p.Cap
		}
	}
	return lastErr
}

// ErrExhausted wraps lastErr to signal retry exhaustion distinctly from a
// single-attempt failure, for callers that want to distinguish the two.
func ErrExhausted(lastErr error) error {
	return errors.Join(errors.New("retry: attempts exhausted"), lastErr)
}
