// Package pubsub publishes commit notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

var _ board.Publisher = (*Publisher)(nil)

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the payload to JSON, carries the trace context in the
// message attributes and waits for the server-assigned ID.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string)}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
