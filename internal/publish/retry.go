package publish

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brightmind/post-publisher/internal/apierr"
	"github.com/brightmind/post-publisher/internal/config"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy is a bounded exponential backoff schedule for an idempotent
// operation. Only errors whose upstream status satisfies RetryableStatus are
// retried; every other error is returned as is.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	Multiplier      float64
	RetryableStatus func(status int) bool
	// Wait suspends between attempts. It must return early when ctx ends.
	Wait func(ctx context.Context, d time.Duration) error
	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(UploadAttempt)
}

// UploadAttempt records one pass through the retry loop.
type UploadAttempt struct {
	Number int
	// Err is nil for the successful attempt.
	Err error
	// Delay is the backoff before the next attempt, zero for the last one.
	Delay time.Duration
}

// DefaultUploadPolicy builds the media upload policy from cfg: three attempts
// with 1s then 2s between them, retrying 500, 502, 503 and 504.
func DefaultUploadPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialDelay:    cfg.InitialBackoff,
		Multiplier:      cfg.Multiplier,
		RetryableStatus: apierr.IsTransientStatus,
		Wait:            sleepContext,
	}
}

// Delay returns the wait before attempt n+1, for n starting at 1.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(n-1)))
}

// Run calls op until it succeeds, fails with a non-retryable error, or the
// attempt bound is reached. Exhaustion yields a MediaUploadExhausted error
// wrapping the last failure.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx, attempt)
		if err == nil {
			p.observe(UploadAttempt{Number: attempt})
			return nil
		}
		lastErr = err
		if !p.retryable(err) {
			p.observe(UploadAttempt{Number: attempt, Err: err})
			return err
		}
		if attempt == maxAttempts {
			p.observe(UploadAttempt{Number: attempt, Err: err})
			break
		}

		delay := p.Delay(attempt)
		p.observe(UploadAttempt{Number: attempt, Err: err, Delay: delay})
		log.Debugf("publish: attempt %d/%d failed (%v), retrying in %s", attempt, maxAttempts, err, delay)
		if errWait := wait(ctx, delay); errWait != nil {
			return errWait
		}
	}

	e := apierr.Wrap(apierr.KindMediaUploadExhausted, fmt.Sprintf("media upload failed after %d attempts", maxAttempts), lastErr)
	if inner, ok := apierr.As(lastErr); ok {
		e.HTTPStatus = inner.HTTPStatus
	}
	return e
}

func (p RetryPolicy) retryable(err error) bool {
	if p.RetryableStatus == nil {
		return false
	}
	e, ok := apierr.As(err)
	if !ok || e.HTTPStatus == 0 {
		return false
	}
	return p.RetryableStatus(e.HTTPStatus)
}

func (p RetryPolicy) observe(a UploadAttempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
