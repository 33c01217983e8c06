package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds how often an operation is attempted and how long to wait
// between attempts. The wait doubles after every failure.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Do runs op until it succeeds, the attempts run out or ctx is done. The last
// error is returned wrapped with the attempt count.
func Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	return DoWithLogger(ctx, policy, nil, "", op)
}

// DoWithLogger is Do with a debug line per failed attempt.
func DoWithLogger(ctx context.Context, policy Policy, logger *slog.Logger, name string, op func(context.Context) error) error {
	policy = policy.normalized()
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if logger != nil {
			logger.Debug("operation failed",
				slog.String("op", name),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", policy.MaxAttempts),
				slog.String("error", lastErr.Error()),
			)
		}
		if attempt == policy.MaxAttempts {
			break
		}
		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", policy.MaxAttempts, lastErr)
}
