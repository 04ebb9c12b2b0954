package notify

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

const publishTimeout = 30 * time.Second

// message is the wire form published to the topic.
type message struct {
	SessionID string         `json:"session_id"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	TS        time.Time      `json:"ts"`
}

// PubSub publishes crawl events to a Google Cloud Pub/Sub topic. Publishing
// is fire-and-forget: a failed publish is logged, never surfaced to the
// crawl, so a flaky broker cannot fail a session.
type PubSub struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSub wraps a topic. The caller owns the client lifecycle.
func NewPubSub(topic *pubsub.Topic, logger *zap.Logger) *PubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSub{topic: topic, logger: logger}
}

// Publish marshals and publishes the event asynchronously.
func (p *PubSub) Publish(sessionID string, event string, payload map[string]any) {
	if p.topic == nil {
		return
	}
	data, err := json.Marshal(message{
		SessionID: sessionID,
		Event:     event,
		Payload:   payload,
		TS:        time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		result := p.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"session_id": sessionID,
				"event":      event,
			},
		})
		if _, err := result.Get(ctx); err != nil {
			p.logger.Warn("event publish failed",
				zap.String("session_id", sessionID),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}()
}
