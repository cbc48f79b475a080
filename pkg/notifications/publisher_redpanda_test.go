package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TestPublisher_Redpanda publishes to a real Redpanda broker and reads the
// record back.
func TestPublisher_Redpanda(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:latest")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	defer func() {
		_ = container.Terminate(ctx)
	}()

	brokers, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	topic := "test.doccontrol-notifications"
	pub, err := NewPublisher(PublisherConfig{Brokers: []string{brokers}, Topic: topic})
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.EnsureTopic(ctx, 1, 1))
	// Creating it again is not an error.
	require.NoError(t, pub.EnsureTopic(ctx, 1, 1))

	msg := NewMessage(NotificationTypeDocumentDistributed, "DOC-SWP-0001 distributed", Recipient{ID: "w-1"}).
		ForDocument("acme", "doc-1", "DOC-SWP-0001", "1.0")
	require.NoError(t, pub.Notify(ctx, msg))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fetches := consumer.PollFetches(pollCtx)
	require.Empty(t, fetches.Errors())

	var records []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, r)
	})
	require.Len(t, records, 1)
	assert.Equal(t, "doc:doc-1", string(records[0].Key))

	var decoded NotificationMessage
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, NotificationTypeDocumentDistributed, decoded.Type)

	// The notification worker's consumer group delivers the same record.
	rec := NewRecorder(nil)
	worker, err := NewConsumer(ConsumerConfig{Brokers: []string{brokers}, Topic: topic, Group: "test-workers"}, rec)
	require.NoError(t, err)
	defer worker.Close()

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(runCtx) }()

	assert.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, 30*time.Second, 100*time.Millisecond)
	stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, msg.ID, rec.Messages()[0].ID)
}
