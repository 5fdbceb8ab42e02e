package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker wraps a Predictor so a flaky or slow external
// classifier trips open and degrades every subsequent call to
// predictor-absent until it recovers, instead of stalling scheduler
// ticks on a hanging inference call.
type CircuitBreaker struct {
	inner   Predictor
	breaker *gobreaker.CircuitBreaker
}

// DefaultBreakerSettings trips after 3 consecutive failures (a success
// resets the run; with Interval 0 the counts are never cleared on a
// timer while closed) and lets one probe call through, half-open,
// after 30 seconds open.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

// NewCircuitBreaker wraps inner with the given breaker settings.
func NewCircuitBreaker(inner Predictor, settings gobreaker.Settings) *CircuitBreaker {
	return &CircuitBreaker{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Predict satisfies Predictor. When the breaker is open or the inner
// call fails, it returns an error so the decision engine falls back to
// the static path exactly as it would for predictor-absent.
func (c *CircuitBreaker) Predict(ctx context.Context, features []float64) (float64, string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		probability, reason, predictErr := c.inner.Predict(ctx, features)
		if predictErr != nil {
			return nil, predictErr
		}

		return predictionResult{probability: probability, reason: reason}, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("predict: circuit breaker %s: %w", c.breaker.Name(), err)
	}

	pr, ok := result.(predictionResult)
	if !ok {
		return 0, "", fmt.Errorf("predict: circuit breaker %s: unexpected result type", c.breaker.Name())
	}

	return pr.probability, pr.reason, nil
}

type predictionResult struct {
	probability float64
	reason      string
}
