package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func record(t *testing.T, msg *NotificationMessage) *kgo.Record {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return &kgo.Record{Value: b}
}

func TestConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(nil)
	c := newConsumer(rec, nil, nil)

	msg := NewMessage(NotificationTypeReviewOverdue, "Review overdue", Recipient{ID: "bob"}).
		ForDocument("acme", "doc-1", "DOC-MNT-0001", "1.0")
	require.NoError(t, c.Handle(ctx, record(t, msg)))
	require.NoError(t, c.Handle(ctx, &kgo.Record{Value: []byte("{not json")}), "malformed records are skipped")

	got := rec.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "DOC-MNT-0001", got[0].ControlNumber)
	assert.Equal(t, []Recipient{{ID: "bob"}}, got[0].Recipients)
}

func TestConsumer_HandleTypeFilter(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(nil)
	c := newConsumer(rec, []NotificationType{NotificationTypeApprovalRequested}, nil)

	require.NoError(t, c.Handle(ctx, record(t, NewMessage(NotificationTypeReviewOverdue, "skip"))))
	require.NoError(t, c.Handle(ctx, record(t, NewMessage(NotificationTypeApprovalRequested, "keep"))))

	got := rec.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].Subject)
}

func TestConsumer_HandleDeliveryError(t *testing.T) {
	c := newConsumer(NewRecorder(errors.New("smtp down")), nil, nil)
	err := c.Handle(context.Background(), record(t, NewMessage(NotificationTypeDocumentActivated, "x")))
	assert.ErrorContains(t, err, "smtp down")
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{Topic: "t"}, NopNotifier{})
	assert.Error(t, err)
	_, err = NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}}, NopNotifier{})
	assert.Error(t, err)
	_, err = NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	assert.Error(t, err)
}
