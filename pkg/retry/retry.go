// Package retry runs operations under an explicit exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultFactor   = 2.0
	defaultMaxDelay = time.Minute
)

// Policy configures retries of a single call site.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 are treated as 1.
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	// RateLimitDelay replaces the exponential step when IsRateLimited matches the last error.
	RateLimitDelay time.Duration
	IsRateLimited  func(error) bool
}

// Notify is called before each wait with the failed attempt number (starting at 1).
type Notify func(err error, attempt int, wait time.Duration)

// Do calls op until it succeeds, attempts run out or ctx is done, and returns the last error.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), notify Notify) (T, error) {
	p = p.withDefaults()

	b := &rateLimitBackOff{
		BackOff: p.exponential(),
		delay:   p.RateLimitDelay,
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := op(ctx)
		b.limited = err != nil && p.IsRateLimited != nil && p.IsRateLimited(err)
		return res, err
	}

	var n backoff.Notify
	if notify != nil {
		n = func(err error, wait time.Duration) {
			notify(err, attempt, wait)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotifyWithData(operation, policy, n)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Factor < 1 {
		p.Factor = defaultFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

func (p Policy) exponential() *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.Factor
	exp.MaxInterval = p.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Delays returns the waits the policy applies between attempts when no error is rate limited.
func (p Policy) Delays() []time.Duration {
	p = p.withDefaults()
	exp := p.exponential()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, exp.NextBackOff())
	}
	return out
}

type rateLimitBackOff struct {
	backoff.BackOff
	delay   time.Duration
	limited bool
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.limited && b.delay > next {
		return b.delay
	}
	return next
}
