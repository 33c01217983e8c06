package kv

import (
	"context"
	"log/slog"

	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/metrics"
	"focusguard/internal/platform/retry"
)

// Retrying runs every call of the wrapped store under a retry policy. A call
// that keeps failing surfaces as *apperrors.StorageError.
type Retrying struct {
	inner  Store
	policy retry.Policy
	logger *slog.Logger
}

func WithRetry(inner Store, policy retry.Policy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

func (r *Retrying) run(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := 0
	err := retry.DoWithLogger(ctx, r.policy, r.logger, op, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.StorageRetriesTotal.Inc()
		}
		return fn(ctx)
	})
	metrics.StorageOpsTotal.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		return &apperrors.StorageError{Op: op, Err: err}
	}
	return nil
}

func (r *Retrying) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := r.run(ctx, "get", func(ctx context.Context) error {
		var err error
		value, found, err = r.inner.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (r *Retrying) Set(ctx context.Context, entries map[string][]byte) error {
	return r.run(ctx, "set", func(ctx context.Context) error {
		return r.inner.Set(ctx, entries)
	})
}

func (r *Retrying) Delete(ctx context.Context, keys ...string) error {
	return r.run(ctx, "delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, keys...)
	})
}

func (r *Retrying) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.run(ctx, "keys", func(ctx context.Context) error {
		var err error
		keys, err = r.inner.Keys(ctx)
		return err
	})
	return keys, err
}

func (r *Retrying) Watch(ctx context.Context, fn func(Change)) error {
	return r.inner.Watch(ctx, fn)
}

func (r *Retrying) Close() error {
	return r.inner.Close()
}
