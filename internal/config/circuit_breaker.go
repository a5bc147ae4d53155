package config

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker names. The timeout depends on the dependency.
const (
	BreakerRedis    = "Redis-Cache"
	BreakerRabbitMQ = "RabbitMQ-Publisher"
)

// NewCircuitBreaker creates a circuit breaker with standard settings.
// It opens after 3 consecutive failures and lets 3 requests through when half-open.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	var timeout time.Duration
	switch name {
	case BreakerRedis:
		timeout = 5 * time.Second
	default:
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
