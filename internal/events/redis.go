package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"hqms/queue-service/internal/models"
)

// RedisPublisher pushes events onto Redis pub/sub channels so detached
// display boards and kiosk frontends can follow the queue without polling.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event models.QueueEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("redis publish: marshal event failed: %v", err)
		return
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		log.Printf("redis publish: topic=%s type=%s failed: %v", topic, event.Type, err)
	}
}
