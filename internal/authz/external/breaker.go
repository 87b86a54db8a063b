package external

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Breaker defaults.
const (
	defaultBreakerMinRequests = 10
	defaultBreakerRatio       = 0.5
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultBreakerHalfOpenMax = 1
)

// newBreaker builds a gobreaker around the engine. Caller cancellation is
// not counted as an engine failure.
func newBreaker(
	name string,
	cfg *CircuitBreakerConfig,
	logger observability.Logger,
	metrics *Metrics,
) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = defaultBreakerMinRequests
	}
	ratio := cfg.Ratio
	if ratio == 0 {
		ratio = defaultBreakerRatio
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenTimeout
	}
	halfOpenMax := cfg.HalfOpenMax
	if halfOpenMax == 0 {
		halfOpenMax = defaultBreakerHalfOpenMax
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenMax,
		Interval:    openTimeout,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("authority circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			metrics.recordTransition(name, from.String(), to.String())

			_, span := tracer.Start(context.Background(),
				"authority.circuit_breaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}
