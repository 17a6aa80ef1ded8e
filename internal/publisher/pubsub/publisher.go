// Package pubsub publishes pulse events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pulseflow/internal/publisher"
)

// Publisher sends PulseCreated events to one topic. Messages for the same
// signal share an ordering key so subscribers see them in pulse order.
type Publisher struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	ownsClient bool
}

var _ publisher.Publisher = (*Publisher)(nil)

// Dial creates a client for projectID that publishes to topicID.
func Dial(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := New(client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.ownsClient = true
	return p, nil
}

// New publishes to topicID through an existing client.
func New(client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub topic is required")
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	return &Publisher{client: client, topic: topic}, nil
}

// PublishPulseCreated sends ev and waits for the server-assigned id.
func (p *Publisher) PublishPulseCreated(ctx context.Context, ev publisher.PulseCreated) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	ev, err := ev.Normalize()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal pulse event: %w", err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  ev.Attributes(),
		OrderingKey: ev.SignalID,
	})
	id, err := res.Get(ctx)
	if err != nil {
		p.topic.ResumePublish(ev.SignalID)
		return "", fmt.Errorf("publish pulse %s: %w", ev.PulseID, err)
	}
	return id, nil
}

// Close flushes the topic and, when Dial created it, closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if !p.ownsClient {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
