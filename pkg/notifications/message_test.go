package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationMessageSerialization(t *testing.T) {
	msg := NotificationMessage{
		ID:        "test-123",
		Type:      NotificationTypeDocumentApproved,
		Timestamp: time.Date(2025, 11, 14, 10, 30, 0, 0, time.UTC),
		Recipients: []Recipient{
			{ID: "w-1", Email: "user@example.com", Name: "Test User"},
		},
		CompanyID:     "acme",
		DocumentID:    "doc-123",
		ControlNumber: "DOC-POL-0001",
		Subject:       "DOC-POL-0001 approved",
		Context: map[string]any{
			"version": "1.0",
			"roles":   []string{"supervisor", "manager"},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded NotificationMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.Type, decoded.Type)
	assert.Equal(t, msg.DocumentID, decoded.DocumentID)
	assert.Equal(t, msg.ControlNumber, decoded.ControlNumber)
	require.Len(t, decoded.Recipients, 1)
	assert.Equal(t, "user@example.com", decoded.Recipients[0].Email)
	assert.Equal(t, "1.0", decoded.Context["version"])
	assert.True(t, msg.Timestamp.Equal(decoded.Timestamp))
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(NotificationTypeAcknowledgmentRequired, "please read", Recipient{ID: "w-1"}).
		ForDocument("acme", "doc-1", "DOC-SWP-0002", "2.0")

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, "acme", msg.CompanyID)
	assert.Equal(t, "DOC-SWP-0002", msg.ControlNumber)
	assert.Equal(t, "2.0", msg.Version)
}

func TestDeterminePartitionKey(t *testing.T) {
	tests := []struct {
		name string
		msg  *NotificationMessage
		want string
	}{
		{"document", &NotificationMessage{ID: "m", DocumentID: "d", Recipients: []Recipient{{ID: "u"}}}, "doc:d"},
		{"recipient id", &NotificationMessage{ID: "m", Recipients: []Recipient{{ID: "u", Email: "e"}}}, "user:u"},
		{"recipient email", &NotificationMessage{ID: "m", Recipients: []Recipient{{Email: "e"}}}, "user:e"},
		{"fallback", &NotificationMessage{ID: "m"}, "m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determinePartitionKey(tt.msg))
		})
	}
}

func TestRecorderAndMulti(t *testing.T) {
	ctx := context.Background()
	ok := NewRecorder(nil)
	failing := NewRecorder(errors.New("broker down"))

	m := Multi{ok, NopNotifier{}, failing, NewLogNotifier(hclog.NewNullLogger())}
	err := m.Notify(ctx, NewMessage(NotificationTypeReviewOverdue, "overdue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.Len(t, ok.Messages(), 1)
	assert.Len(t, failing.Messages(), 1)
	assert.Len(t, ok.OfType(NotificationTypeReviewOverdue), 1)
	assert.Empty(t, ok.OfType(NotificationTypeDocumentApproved))
}

func TestDeliverSwallowsErrors(t *testing.T) {
	failing := NewRecorder(errors.New("broker down"))

	assert.NotPanics(t, func() {
		Deliver(context.Background(), failing, hclog.NewNullLogger(),
			NewMessage(NotificationTypeDocumentDistributed, "a"),
			NewMessage(NotificationTypeDocumentDistributed, "b"),
		)
		Deliver(context.Background(), nil, nil, NewMessage(NotificationTypeDocumentDistributed, "c"))
	})
	assert.Len(t, failing.Messages(), 2)
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
