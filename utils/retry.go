package utils

import (
	"context"
	"fmt"
	"time"

	"listing-scraper/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryRule describes how one failure kind is retried. MaxAttempts counts
// the first try, so 3 means at most two retries.
type RetryRule struct {
	MaxAttempts int
	Delay       time.Duration
	// Exponential doubles Delay after every retry, up to MaxDelay.
	Exponential bool
	MaxDelay    time.Duration
}

// RetryPolicy maps render failure kinds to rules. A kind without a rule
// aborts on first sight.
type RetryPolicy map[models.ErrorKind]RetryRule

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		models.KindTimeout:        {MaxAttempts: 3, Delay: 2 * time.Second},
		models.KindNetworkFailure: {MaxAttempts: 3, Delay: 2 * time.Second},
		models.KindBlocked:        {MaxAttempts: 4, Delay: 5 * time.Second, Exponential: true, MaxDelay: time.Minute},
	}
}

// Attempt is reported for every failed try. Retried is false for the
// failure that ends the loop.
type Attempt struct {
	Kind    models.ErrorKind
	Number  int
	Retried bool
	Delay   time.Duration
	Err     error
}

type Retrier struct {
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

func NewRetrier(policy RetryPolicy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: policy, sleep: Sleep, logger: logger}
}

// WithSleep swaps the wait function, mostly so tests can record delays.
func (r *Retrier) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Retrier {
	r.sleep = fn
	return r
}

// Do runs fn until it succeeds or the policy gives up. Each call is scoped
// to a single cursor: attempt counters and backoff state start fresh.
// Errors that are not RenderErrors are returned untouched, as is context
// cancellation.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error, observe func(Attempt)) error {
	if observe == nil {
		observe = func(Attempt) {}
	}
	var escalation *backoff.ExponentialBackOff

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind, ok := models.RenderErrorKind(err)
		if !ok {
			return err
		}

		rule, retryable := r.policy[kind]
		if !retryable || attempt >= rule.MaxAttempts {
			observe(Attempt{Kind: kind, Number: attempt, Err: err})
			if !retryable {
				return err
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := rule.Delay
		if rule.Exponential {
			if escalation == nil {
				escalation = newEscalation(rule)
			}
			delay = escalation.NextBackOff()
		}

		observe(Attempt{Kind: kind, Number: attempt, Retried: true, Delay: delay, Err: err})
		r.logger.Warn("retry",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", rule.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func newEscalation(rule RetryRule) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rule.Delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = rule.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = rule.Delay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
