package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// StreamPublisher delivers outbox entries to a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if client == nil {
		panic("events: redis client required")
	}
	if stream == "" {
		stream = "barbershop:bookings"
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: 10000}
}

func (p *StreamPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"aggregate_id": entry.AggregateID,
			"type":         entry.Type,
			"payload":      string(entry.Payload),
			"created_at":   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("events: publish to stream %s: %w", p.stream, err)
	}
	return nil
}

// LogHandler writes events to the log. Used when no Redis is configured.
type LogHandler struct {
	Logger *logging.Logger
}

func (h LogHandler) Handle(_ context.Context, entry OutboxEntry) error {
	logger := h.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("booking event", "event_id", entry.ID, "type", entry.Type,
		"aggregate_id", entry.AggregateID, "payload", string(entry.Payload))
	return nil
}
