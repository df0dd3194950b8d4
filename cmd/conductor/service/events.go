package service

import (
	"context"
	"encoding/json"

	"github.com/flowmatic/conductor/cmd/conductor/engine"
	"github.com/flowmatic/conductor/common/logger"
	"github.com/flowmatic/conductor/common/redis"
)

// EventChannel is the Redis pub/sub channel carrying lifecycle events.
const EventChannel = "conductor:events"

// RedisEventPublisher fans lifecycle events out on Redis pub/sub for
// dashboards and connector webhooks. Best effort: publish failures are
// logged, never surfaced to the run.
type RedisEventPublisher struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisEventPublisher creates a Redis-backed event publisher
func NewRedisEventPublisher(client *redis.Client, log *logger.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, log: log}
}

// Publish sends one event to the lifecycle channel.
func (p *RedisEventPublisher) Publish(ctx context.Context, event *engine.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode lifecycle event", "type", event.Type, "error", err)
		return
	}
	if err := p.client.Publish(ctx, EventChannel, string(payload)); err != nil {
		p.log.Warn("failed to publish lifecycle event",
			"type", event.Type, "execution_id", event.ExecutionID, "error", err)
	}
}
