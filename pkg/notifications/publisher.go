package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Publisher publishes notifications to Redpanda/Kafka
type Publisher struct {
	client *kgo.Client
	topic  string
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewPublisher creates a new notification publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Linear backoff capped at 60s.
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// EnsureTopic creates the notification topic if it does not exist.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	req := kmsg.NewCreateTopicsRequest()
	topic := kmsg.NewCreateTopicsRequestTopic()
	topic.Topic = p.topic
	topic.NumPartitions = partitions
	topic.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, p.client)
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", p.topic, err)
	}
	for _, t := range resp.Topics {
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("failed to create topic %q: %w", t.Topic, err)
		}
	}
	return nil
}

// Notify implements Notifier by publishing msg.
func (p *Publisher) Notify(ctx context.Context, msg *NotificationMessage) error {
	return p.PublishMessage(ctx, msg)
}

// PublishMessage publishes a pre-built notification message
func (p *Publisher) PublishMessage(ctx context.Context, msg *NotificationMessage) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(determinePartitionKey(msg)),
		Value: msgJSON,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() {
	p.client.Close()
}

// determinePartitionKey keeps messages about one document on one partition,
// then falls back to the first recipient.
func determinePartitionKey(msg *NotificationMessage) string {
	if msg.DocumentID != "" {
		return fmt.Sprintf("doc:%s", msg.DocumentID)
	}

	if len(msg.Recipients) > 0 {
		r := msg.Recipients[0]
		switch {
		case r.ID != "":
			return fmt.Sprintf("user:%s", r.ID)
		case r.Email != "":
			return fmt.Sprintf("user:%s", r.Email)
		}
	}

	return msg.ID
}
