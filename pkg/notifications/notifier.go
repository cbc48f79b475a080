package notifications

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Notifier delivers notification messages.
type Notifier interface {
	Notify(ctx context.Context, msg *NotificationMessage) error
}

// NopNotifier discards every message.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, *NotificationMessage) error { return nil }

// LogNotifier writes messages to a logger. It is used when no broker is
// configured.
type LogNotifier struct {
	logger hclog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger hclog.Logger) *LogNotifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogNotifier{logger: logger.Named("notifications")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, msg *NotificationMessage) error {
	n.logger.Info("notification",
		"id", msg.ID,
		"type", msg.Type,
		"document_id", msg.DocumentID,
		"control_number", msg.ControlNumber,
		"recipients", len(msg.Recipients),
		"subject", msg.Subject,
	)
	return nil
}

// Multi fans a message out to several notifiers and combines their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg *NotificationMessage) error {
	var result error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Recorder keeps every message it receives. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []*NotificationMessage
	err      error
}

// NewRecorder creates a Recorder. A non-nil err is returned from every
// Notify call after the message is recorded.
func NewRecorder(err error) *Recorder {
	return &Recorder{err: err}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, msg *NotificationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.err
}

// Messages returns the recorded messages.
func (r *Recorder) Messages() []*NotificationMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*NotificationMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// OfType returns the recorded messages of type t.
func (r *Recorder) OfType(t NotificationType) []*NotificationMessage {
	var out []*NotificationMessage
	for _, m := range r.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Deliver sends msgs through n and logs failures without returning them.
// Notifications are best-effort and must never fail the operation that
// produced them.
func Deliver(ctx context.Context, n Notifier, logger hclog.Logger, msgs ...*NotificationMessage) {
	if n == nil {
		return
	}
	for _, msg := range msgs {
		if err := n.Notify(ctx, msg); err != nil && logger != nil {
			logger.Warn("failed to deliver notification",
				"type", msg.Type,
				"document_id", msg.DocumentID,
				"error", err,
			)
		}
	}
}
