// Package distribution tracks who has received and acknowledged a document.
//
// Two independent mechanisms coexist. Distributions record explicit
// delivery events (email, toolbox talk, ...) with optional quizzes.
// Acknowledgment requirements record that a worker must sign off on a
// document version by a deadline. Summaries are computed from each
// mechanism separately.
package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

// Tracker records distributions and acknowledgments.
type Tracker struct {
	db       *gorm.DB
	logger   hclog.Logger
	notifier notifications.Notifier
	now      func() time.Time
	dueDays  int
}

// Option is a functional option for creating a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithNotifier sets the notifier for distributions and reminders.
func WithNotifier(n notifications.Notifier) Option {
	return func(t *Tracker) {
		if n != nil {
			t.notifier = n
		}
	}
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithAcknowledgmentDueDays sets the default acknowledgment deadline.
func WithAcknowledgmentDueDays(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.dueDays = days
		}
	}
}

// New creates a Tracker.
func New(db *gorm.DB, opts ...Option) *Tracker {
	t := &Tracker{
		db:       db,
		logger:   hclog.NewNullLogger(),
		notifier: notifications.NopNotifier{},
		now:      time.Now,
		dueDays:  models.DefaultAcknowledgmentDueDays,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("distribution")
	return t
}

// CompletionRate returns done/total as a percentage rounded to two decimals,
// or 0 when total is 0.
func CompletionRate(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(done) / float64(total) * 100
	return float64(int64(rate*100+0.5)) / 100
}

// loadDistributable loads a document that can still be distributed.
func loadDistributable(ctx context.Context, tx *gorm.DB, op, id string) (*models.Document, error) {
	doc, err := lifecycle.Load(ctx, tx, op, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() {
		return nil, docerr.Precondition(op, "document", doc.ID, "document is %s", doc.Status)
	}
	return doc, nil
}

func docMessage(t notifications.NotificationType, doc *models.Document, subject string, r notifications.Recipient) *notifications.NotificationMessage {
	return notifications.NewMessage(t, fmt.Sprintf("%s: %s %s", subject, doc.ControlNumber, doc.Title), r).
		ForDocument(doc.CompanyID, doc.ID, doc.ControlNumber, doc.Version)
}
