package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/metrics"
)

// statusError is a non-2xx answer from a backend
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// backendGuard wraps calls to an external backend with a circuit breaker and bounded retries
type backendGuard struct {
	name            string
	breaker         *gobreaker.CircuitBreaker
	maxRetries      uint64
	initialInterval time.Duration
	metrics         *metrics.Collector
	logger          *zap.Logger
}

func newBackendGuard(name string, maxRetries int, m *metrics.Collector, log *zap.Logger) *backendGuard {
	if maxRetries < 0 {
		maxRetries = 0
	}
	g := &backendGuard{
		name:            name,
		maxRetries:      uint64(maxRetries),
		initialInterval: 200 * time.Millisecond,
		metrics:         m,
		logger:          log,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Backend circuit changed state",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// do runs op until it succeeds, fails permanently, runs out of retries or ctx ends
func (g *backendGuard) do(ctx context.Context, op func(ctx context.Context) error) error {
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initialInterval
	policy.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx)

	err := backoff.Retry(func() error {
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, op(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(apperrors.NewServiceUnavailableError(g.name, err))
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		g.logger.Debug("Backend call failed, retrying", zap.String("backend", g.name), zap.Error(err))
		return err
	}, bo)

	if g.metrics != nil {
		g.metrics.ObserveBackend(g.name, start, err)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewExternalServiceError(g.name, err)
}
