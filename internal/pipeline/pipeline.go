// Package pipeline wraps repository operations in a uniform execution policy:
// every fault is normalized into a structured fault value, transient storage
// failures are retried a bounded number of times, and timing and outcome are
// recorded once here rather than inside each operation.
package pipeline

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"identity-store/internal/fault"
	"identity-store/internal/observability"
)

// Config bounds the retry policy.
type Config struct {
	// MaxAttempts is the total number of invocations per call, including the
	// first. Only transient faults consume extra attempts.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// Runner executes operations under one shared policy.
type Runner struct {
	cfg Config
}

// New returns a runner; zero config fields take the defaults (3 attempts,
// 50ms delay).
func New(cfg Config) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &Runner{cfg: cfg}
}

// Execute runs fn as the named operation. On success the result is returned
// untouched. On failure the error is always a *fault.Fault carrying op and
// params; transient failures are re-run up to the configured attempts before
// surfacing. fn runs exactly once unless its failure classifies as transient.
func Execute[T any](ctx context.Context, r *Runner, op string, params map[string]any, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := otel.Tracer("identity-store/pipeline").Start(ctx, op)
	defer span.End()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		out, err := fn(ctx)
		elapsed := time.Since(start)
		if err == nil {
			observability.RecordOperation(ctx, op, "success", elapsed)
			return out, nil
		}

		kind := fault.Classify(err)
		observability.RecordOperation(ctx, op, string(kind), elapsed)
		if kind == fault.Transient && attempt < r.cfg.MaxAttempts {
			log.Printf("pipeline: %s transient failure, attempt %d/%d: %v", op, attempt, r.cfg.MaxAttempts, err)
			select {
			case <-ctx.Done():
				f := fault.Wrap(op, params, ctx.Err())
				span.SetStatus(codes.Error, string(f.Kind))
				return zero, f
			case <-time.After(r.cfg.RetryDelay):
			}
			continue
		}

		f := fault.Wrap(op, params, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(f.Kind))
		span.SetAttributes(attribute.String("fault.kind", string(f.Kind)))
		log.Printf("pipeline: %s failed (%s): %v", op, f.Kind, err)
		return zero, f
	}
}
