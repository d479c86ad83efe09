package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/pkg/circuit"
)

// Provider is the single interface boundary to everything that produces a
// trading opinion: rule-based scouts, LLM desks, debate orchestrators. Both
// calls may be slow and may fail; callers treat them as best-effort.
type Provider interface {
	Research(ctx context.Context, m market.Market) (Verdict, error)
	ExitOpinion(ctx context.Context, q ExitQuery) (ExitRecommendation, error)
}

// Resilient wraps a Provider with bounded retry, exponential backoff and a
// circuit breaker. Persistent failure surfaces ErrUnavailable; nothing here
// retries indefinitely.
type Resilient struct {
	inner      Provider
	maxRetries int
	baseWait   time.Duration
	breaker    *circuit.CircuitBreaker
}

func NewResilient(inner Provider, maxRetries, breakerThreshold int, cooldown time.Duration) *Resilient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Resilient{
		inner:      inner,
		maxRetries: maxRetries,
		baseWait:   time.Second,
		breaker:    circuit.NewCircuitBreaker("analysis", breakerThreshold, cooldown),
	}
}

func (r *Resilient) Research(ctx context.Context, m market.Market) (Verdict, error) {
	var verdict Verdict
	err := r.call(ctx, "research", func(ctx context.Context) error {
		var err error
		verdict, err = r.inner.Research(ctx, m)
		return err
	})
	return verdict, err
}

func (r *Resilient) ExitOpinion(ctx context.Context, q ExitQuery) (ExitRecommendation, error) {
	var rec ExitRecommendation
	err := r.call(ctx, "exit_opinion", func(ctx context.Context) error {
		var err error
		rec, err = r.inner.ExitOpinion(ctx, q)
		return err
	})
	return rec, err
}

func (r *Resilient) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if !r.breaker.Allow() {
		return fmt.Errorf("%w: circuit open for %s", ErrUnavailable, op)
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseWait
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %s cancelled", ErrUnavailable, op)
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			r.breaker.RecordSuccess()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !errors.Is(err, ErrUnavailable) {
			// Cancellation and non-retryable errors (bad verdict JSON,
			// provider refusal) are surfaced as-is.
			r.breaker.RecordFailure()
			return err
		}
		logger.Warnf("analysis %s attempt %d/%d failed: %v", op, attempt+1, r.maxRetries+1, err)
	}
	r.breaker.RecordFailure()
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, op, r.maxRetries+1, lastErr)
}
