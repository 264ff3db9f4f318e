// Package mesh is the in-process event bus connecting the ingest pipeline,
// the agent monitor and the metrics layer. A NATS-backed implementation is
// available behind the 'nats' build tag for multi-instance deployments.
package mesh

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TopicDocumentReceived  = "document.received"
	TopicDocumentProcessed = "document.processed"
	TopicDocumentFailed    = "document.failed"
	TopicAgentStatus       = "agent.status"
)

type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
	Close() error
}

// PublishJSON marshals payload and publishes it on topic. Marshal errors
// are returned instead of publishing a partial event.
func PublishJSON(ctx context.Context, b Bus, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(ctx, Event{Topic: topic, Payload: raw})
}
