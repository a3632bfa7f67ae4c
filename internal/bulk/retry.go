package bulk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frhnm/tgfleet/internal/domain"
)

// RetryPolicy bounds the retry helper. Zero values fall back to the
// defaults the whole tool uses.
type RetryPolicy struct {
	// MaxAttempts caps attempts per session per run, first try included.
	MaxAttempts int
	// BaseDelay is doubled on every transient retry, up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxFloodWait is the longest vendor-mandated cooldown the helper will
	// sit out in-line. Longer cooldowns become a deferred failure instead;
	// the session stays registered and can be retried on a later run.
	MaxFloodWait time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxFloodWait <= 0 {
		p.MaxFloodWait = time.Minute
	}
	return p
}

// Outcome is the classified result of one operation invocation, after
// retries. Err is nil on success.
type Outcome struct {
	Class    domain.Classification
	Attempts int
	Err      error
}

// Retry runs fn with bounded retry for transient failures and mandated
// flood waits. Permanent failures return immediately: retrying a revoked
// credential cannot succeed and wastes the vendor's patience. Every
// classification decision is logged with enough structure for an operator
// to audit why an account was later removed.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, accountID domain.AccountID, operation string, fn func(context.Context) error) Outcome {
	policy = policy.withDefaults()

	var lastErr error
	var lastClass domain.Classification
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return Outcome{Attempts: attempt}
		}
		lastErr = err

		class, viaFallback := domain.Classify(err)
		lastClass = class
		logger.Warn("operation attempt failed",
			"account_id", string(accountID),
			"operation", operation,
			"attempt", attempt,
			"classification", string(class),
			"fallback_match", viaFallback,
			"error", err)

		switch class {
		case domain.ClassPermanent:
			return Outcome{Class: class, Attempts: attempt, Err: err}
		case domain.ClassRateLimited:
			wait := floodWait(err)
			if wait > policy.MaxFloodWait || attempt == policy.MaxAttempts {
				return Outcome{Class: class, Attempts: attempt, Err: err}
			}
			if err := sleep(ctx, wait); err != nil {
				return Outcome{Class: class, Attempts: attempt, Err: err}
			}
		default:
			// Transient and unknown both retry with backoff; unknown was
			// already logged with its own classification above.
			if attempt == policy.MaxAttempts {
				return Outcome{Class: class, Attempts: attempt, Err: err}
			}
			backoff := min(policy.BaseDelay<<(attempt-1), policy.MaxDelay)
			if err := sleep(ctx, backoff); err != nil {
				return Outcome{Class: class, Attempts: attempt, Err: err}
			}
		}
	}

	return Outcome{Class: lastClass, Attempts: policy.MaxAttempts, Err: lastErr}
}

func floodWait(err error) time.Duration {
	var flood *domain.FloodWaitError
	if errors.As(err, &flood) {
		return flood.RetryAfter
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
