package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backoff bounds the connection retries made while the broker is still starting
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff retries for roughly two and a half minutes
var DefaultBackoff = Backoff{MaxRetries: 10, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// Delay returns the wait before retry number attempt (0-based): exponential, capped at MaxDelay
func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.InitialDelay
	for i := 0; i < attempt && delay < b.MaxDelay; i++ {
		delay *= 2
	}
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

// dialFunc opens a queue; swapped in tests
type dialFunc func(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error)

// Connect dials RabbitMQ, retrying with backoff until it succeeds, retries run out or ctx ends
func Connect(ctx context.Context, amqpURL string, b Backoff, logger *zap.Logger) (*RabbitMQQueue, error) {
	return connect(ctx, amqpURL, b, logger, NewRabbitMQQueue)
}

func connect(ctx context.Context, amqpURL string, b Backoff, logger *zap.Logger, dial dialFunc) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b.MaxRetries < 1 {
		b.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < b.MaxRetries; attempt++ {
		q, err := dial(amqpURL, logger)
		if err == nil {
			logger.Info("connected_to_rabbitmq", zap.Int("attempt", attempt+1))
			return q, nil
		}
		lastErr = err
		if attempt == b.MaxRetries-1 {
			break
		}

		delay := b.Delay(attempt)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", b.MaxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", b.MaxRetries, lastErr)
}
