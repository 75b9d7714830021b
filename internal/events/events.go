// Package events delivers lifecycle notifications to whatever transports are
// configured. Delivery is fire-and-forget: a failed broadcast never fails the
// state transition that produced it, so implementations log and swallow their
// own errors.
package events

import (
	"context"

	"hqms/queue-service/internal/models"
)

const (
	TopicQueueUpdates = "queue-updates"
	TopicDisplayBoard = "display-board"
)

// PatientTopic is the per-token topic a waiting patient subscribes to for
// emergency-approval notification.
func PatientTopic(tokenNumber string) string {
	return TopicQueueUpdates + "." + tokenNumber
}

type Publisher interface {
	Publish(ctx context.Context, topic string, event models.QueueEvent)
}

// Fanout replicates every event to all configured publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, event models.QueueEvent) {
	for _, publisher := range f {
		publisher.Publish(ctx, topic, event)
	}
}

// Nop drops everything; used when no transport is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, models.QueueEvent) {}
