package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultConsumerGroup is the consumer group of notification workers.
const DefaultConsumerGroup = "doccontrol-notifiers"

// ConsumerConfig holds configuration for the consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	Group   string

	// Types limits delivery to these notification types; empty means all.
	Types []NotificationType

	Logger hclog.Logger
}

// Consumer reads notifications from the topic and hands each one to a
// Notifier, committing offsets only after successful delivery.
type Consumer struct {
	client  *kgo.Client
	handler Notifier
	types   map[NotificationType]bool
	logger  hclog.Logger
}

// NewConsumer creates a consumer delivering to handler.
func NewConsumer(cfg ConsumerConfig, handler Notifier) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Group == "" {
		cfg.Group = DefaultConsumerGroup
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	c := newConsumer(handler, cfg.Types, cfg.Logger)
	c.client = client
	return c, nil
}

func newConsumer(handler Notifier, types []NotificationType, logger hclog.Logger) *Consumer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Consumer{
		handler: handler,
		logger:  logger.Named("notification-consumer"),
	}
	if len(types) > 0 {
		c.types = make(map[NotificationType]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
	return c
}

// Handle decodes and delivers one record. Records that cannot be decoded or
// whose type is filtered out are skipped without error, so their offset is
// committed.
func (c *Consumer) Handle(ctx context.Context, rec *kgo.Record) error {
	var msg NotificationMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		c.logger.Warn("skipping malformed notification",
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
		return nil
	}
	if c.types != nil && !c.types[msg.Type] {
		c.logger.Trace("skipping notification", "id", msg.ID, "type", msg.Type)
		return nil
	}
	if err := c.handler.Notify(ctx, &msg); err != nil {
		return fmt.Errorf("failed to deliver notification %s: %w", msg.ID, err)
	}
	return nil
}

// Run polls until ctx is cancelled. Records of a partition are delivered
// in order; after a failed delivery the rest of that partition's fetch is
// left uncommitted and redelivered after a restart or rebalance.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting notification consumer")
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			c.logger.Info("notification consumer stopped")
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.Warn("fetch error", "topic", topic, "partition", partition, "error", err)
			}
		})

		var done []*kgo.Record
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, rec := range p.Records {
				if err := c.Handle(ctx, rec); err != nil {
					c.logger.Error("notification delivery failed",
						"partition", rec.Partition,
						"offset", rec.Offset,
						"error", err,
					)
					return
				}
				done = append(done, rec)
			}
		})
		if len(done) == 0 {
			continue
		}

		commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.client.CommitRecords(commitCtx, done...); err != nil {
			c.logger.Warn("failed to commit offsets", "error", err)
		}
		cancel()
	}
}

// Close leaves the consumer group and closes the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
