package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// AttemptLimiter caps booking attempts per client in a rolling window.
type AttemptLimiter struct {
	redis  *redis.Client
	logger *logging.Logger
	max    int
	window time.Duration
}

// NewAttemptLimiter returns nil when max is not positive; a nil limiter
// allows everything.
func NewAttemptLimiter(redisClient *redis.Client, max int, window time.Duration, logger *logging.Logger) *AttemptLimiter {
	if redisClient == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AttemptLimiter{redis: redisClient, logger: logger, max: max, window: window}
}

// Allow counts one attempt for clientID and reports whether it is within the
// limit. Redis failures allow the attempt.
func (l *AttemptLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	if l == nil {
		return true, nil
	}
	ctx, span := bookingsTracer.Start(ctx, "velocity.check_booking")
	defer span.End()

	key := fmt.Sprintf("velocity:booking:%s", clientID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("velocity check failed", "error", err, "key", key)
		return true, nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}

	allowed := int(count) <= l.max
	if !allowed {
		l.logger.Warn("booking velocity exceeded", "client_id", clientID, "count", count, "max", l.max)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return allowed, nil
}

// Reset clears the counter for a client (admin use).
func (l *AttemptLimiter) Reset(ctx context.Context, clientID string) error {
	if l == nil {
		return nil
	}
	return l.redis.Del(ctx, fmt.Sprintf("velocity:booking:%s", clientID)).Err()
}
