package pub

import (
	"context"
	"encoding/json"
	"fmt"

	"escrow-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const EscrowEventsChannel = "escrow_events"

// RedisSink publishes events as JSON on a pub/sub channel.
type RedisSink struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisSink(rdb redis.UniversalClient) *RedisSink {
	return &RedisSink{rdb: rdb, channel: EscrowEventsChannel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev domain.DomainEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
