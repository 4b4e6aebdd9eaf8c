package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/shared"
	"golang.org/x/time/rate"
)

// CallAttempt records one invocation made by [Execute].
type CallAttempt struct {
	Index   int
	Wait    time.Duration
	Outcome Outcome
	Err     error
}

// Policy configures retries for a family of calls.
//
// A Policy is safe to share between goroutines as long as it is not mutated after first use.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	JitterFraction float64

	// Classifier defaults to [DefaultClassifier].
	Classifier Classifier
	// Limiter, when set, paces every attempt including the first.
	Limiter *rate.Limiter
	// OnAttempt is called after each failed attempt.
	OnAttempt func(CallAttempt)
	Logger    *log.Logger

	sleep func(context.Context, time.Duration) error
}

// DefaultPolicy is the out-of-the-box policy: 5 attempts, 1s doubling to 64s, 20% jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		Multiplier:     2,
		MaxDelay:       64 * time.Second,
		JitterFraction: 0.2,
	}
}

// PolicyFromConfig builds a policy from the [retry] section.
func PolicyFromConfig(cfg shared.RetryConfig, logger *log.Logger) *Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMS > 0 {
		p.BaseDelay = cfg.BaseDelay()
	}
	if cfg.MaxDelayMS > 0 {
		p.MaxDelay = cfg.MaxDelay()
	}
	if cfg.Multiplier >= 1 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.Jitter >= 0 && cfg.Jitter <= 1 {
		p.JitterFraction = cfg.Jitter
	}
	if cfg.RateLimit > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	p.Logger = logger
	return p
}

// WithClassifier returns a copy of p using c.
func (p *Policy) WithClassifier(c Classifier) *Policy {
	cp := *p
	cp.Classifier = c
	return &cp
}

// Delay returns the un-jittered wait before the retry that follows attempt (0-based).
func (p *Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p *Policy) wait(attempt int, err error) time.Duration {
	d := p.Delay(attempt)
	if p.JitterFraction > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.JitterFraction * float64(d))
	}
	if ra, ok := RetryAfter(err); ok && ra > d {
		d = ra
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (p *Policy) pause(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute invokes op(ctx, client, params) under policy until it succeeds, fails fatally, or runs out
// of attempts. Fatal errors are returned as-is; exhaustion yields an [*ExhaustedError].
func Execute[C, P, R any](ctx context.Context, policy *Policy, client C, params P, op func(context.Context, C, P) (R, error)) (R, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	classify := policy.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}
	attempts := max(policy.MaxAttempts, 1)

	var (
		zero    R
		history []CallAttempt
	)
	for i := 0; i < attempts; i++ {
		if policy.Limiter != nil {
			if err := policy.Limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		res, err := op(ctx, client, params)
		if err == nil {
			return res, nil
		}

		outcome := classify(err)
		attempt := CallAttempt{Index: i, Outcome: outcome, Err: err}
		if outcome != Retryable {
			policy.report(attempt)
			return zero, err
		}
		if i == attempts-1 {
			history = append(history, attempt)
			policy.report(attempt)
			break
		}

		attempt.Wait = policy.wait(i, err)
		history = append(history, attempt)
		policy.report(attempt)

		if err := policy.pause(ctx, attempt.Wait); err != nil {
			return zero, err
		}
	}

	last := history[len(history)-1]
	return zero, &ExhaustedError{Attempts: len(history), History: history, Err: last.Err}
}

// Do is [Execute] for calls that only need a context.
func (p *Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Execute(ctx, p, struct{}{}, struct{}{}, func(ctx context.Context, _, _ struct{}) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (p *Policy) report(a CallAttempt) {
	if p.Logger != nil {
		if a.Outcome == Retryable {
			p.Logger.Warn("call failed, retrying", "attempt", a.Index+1, "max", p.MaxAttempts, "wait", a.Wait, "err", a.Err)
		} else {
			p.Logger.Debug("call failed", "attempt", a.Index+1, "outcome", a.Outcome, "err", a.Err)
		}
	}
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}
