package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

// RequirementInput asks workers to acknowledge a document's current
// version.
type RequirementInput struct {
	DocumentID string
	WorkerIDs  []string

	// DueDays overrides the tracker's default deadline.
	DueDays int
	Actor   string
}

// WorkerAcknowledgment is a worker's sign-off on a document.
type WorkerAcknowledgment struct {
	DocumentID string
	WorkerID   string
	Method     string
	Signature  string
}

// AcknowledgmentStats summarizes acknowledgment requirements.
type AcknowledgmentStats struct {
	Total          int64   `json:"total"`
	Pending        int64   `json:"pending"`
	Acknowledged   int64   `json:"acknowledged"`
	Overdue        int64   `json:"overdue"`
	Exempt         int64   `json:"exempt"`
	CompletionRate float64 `json:"completionRate"`
}

// CreateAcknowledgmentRequirements creates a pending requirement per worker
// for the document's current version. Workers who already have a row for
// that version are left untouched. Only newly created rows are returned.
func (t *Tracker) CreateAcknowledgmentRequirements(ctx context.Context, in RequirementInput) ([]models.DocumentAcknowledgment, error) {
	const op = "distribution.CreateAcknowledgmentRequirements"

	if len(in.WorkerIDs) == 0 {
		return nil, docerr.Invalid(op, fmt.Errorf("at least one worker is required"))
	}
	days := in.DueDays
	if days <= 0 {
		days = t.dueDays
	}

	var (
		doc     *models.Document
		created []models.DocumentAcknowledgment
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = loadDistributable(ctx, tx, op, in.DocumentID)
		if err != nil {
			return err
		}

		var existing []string
		err = tx.Model(&models.DocumentAcknowledgment{}).
			Where("document_id = ? AND document_version = ? AND worker_id IN ?", doc.ID, doc.Version, in.WorkerIDs).
			Pluck("worker_id", &existing).Error
		if err != nil {
			return docerr.FromDB(op, "document_acknowledgment", doc.ID, err)
		}
		skip := make(map[string]bool, len(existing))
		for _, w := range existing {
			skip[w] = true
		}

		requiredBy := t.now().UTC().AddDate(0, 0, days)
		for _, w := range in.WorkerIDs {
			if w == "" || skip[w] {
				continue
			}
			skip[w] = true
			created = append(created, models.DocumentAcknowledgment{
				DocumentID:      doc.ID,
				DocumentVersion: doc.Version,
				WorkerID:        w,
				Status:          models.AcknowledgmentStatusPending,
				RequiredBy:      &requiredBy,
			})
		}
		if len(created) == 0 {
			return nil
		}
		return docerr.FromDB(op, "document_acknowledgment", doc.ID, tx.Create(&created).Error)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("created acknowledgment requirements",
		"document_id", doc.ID,
		"version", doc.Version,
		"created", len(created),
		"skipped", len(in.WorkerIDs)-len(created),
	)

	msgs := make([]*notifications.NotificationMessage, 0, len(created))
	for _, a := range created {
		msg := docMessage(notifications.NotificationTypeAcknowledgmentRequired, doc, "Acknowledgment required",
			notifications.Recipient{ID: a.WorkerID})
		msg.UserID = in.Actor
		msg.Context = map[string]any{"required_by": a.RequiredBy.Format(time.RFC3339)}
		msgs = append(msgs, msg)
	}
	notifications.Deliver(ctx, t.notifier, t.logger, msgs...)

	return created, nil
}

// AcknowledgeDocumentByWorker records a worker's acknowledgment of the
// document's current version, creating the requirement if none exists.
func (t *Tracker) AcknowledgeDocumentByWorker(ctx context.Context, in WorkerAcknowledgment) (*models.DocumentAcknowledgment, error) {
	const op = "distribution.AcknowledgeDocumentByWorker"

	if in.WorkerID == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("worker id is required"))
	}

	var a models.DocumentAcknowledgment
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := loadDistributable(ctx, tx, op, in.DocumentID)
		if err != nil {
			return err
		}

		now := t.now().UTC()
		err = tx.Where("document_id = ? AND document_version = ? AND worker_id = ?", doc.ID, doc.Version, in.WorkerID).
			First(&a).Error
		switch {
		case err == nil:
			if a.Status == models.AcknowledgmentStatusExempt {
				return docerr.Precondition(op, "document_acknowledgment", a.ID, "worker %s is exempt", in.WorkerID)
			}
			err = tx.Model(&a).Updates(map[string]any{
				"status":          models.AcknowledgmentStatusAcknowledged,
				"acknowledged_at": now,
				"method":          in.Method,
				"signature":       in.Signature,
				"updated_at":      now,
			}).Error
			if err != nil {
				return docerr.FromDB(op, "document_acknowledgment", a.ID, err)
			}
			return tx.Where("id = ?", a.ID).First(&a).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			a = models.DocumentAcknowledgment{
				DocumentID:      doc.ID,
				DocumentVersion: doc.Version,
				WorkerID:        in.WorkerID,
				Status:          models.AcknowledgmentStatusAcknowledged,
				AcknowledgedAt:  &now,
				Method:          in.Method,
				Signature:       in.Signature,
			}
			return docerr.FromDB(op, "document_acknowledgment", doc.ID, tx.Create(&a).Error)
		default:
			return docerr.FromDB(op, "document_acknowledgment", doc.ID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ExemptWorker marks a worker exempt from acknowledging the document's
// current version.
func (t *Tracker) ExemptWorker(ctx context.Context, documentID, workerID, reason string) (*models.DocumentAcknowledgment, error) {
	const op = "distribution.ExemptWorker"

	if workerID == "" || reason == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("worker id and reason are required"))
	}

	var a models.DocumentAcknowledgment
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := loadDistributable(ctx, tx, op, documentID)
		if err != nil {
			return err
		}
		err = tx.Where("document_id = ? AND document_version = ? AND worker_id = ?", doc.ID, doc.Version, workerID).
			First(&a).Error
		if err != nil {
			return docerr.FromDB(op, "document_acknowledgment", workerID, err)
		}
		if a.Status == models.AcknowledgmentStatusAcknowledged {
			return docerr.Precondition(op, "document_acknowledgment", a.ID, "already acknowledged")
		}
		err = tx.Model(&a).Updates(map[string]any{
			"status":        models.AcknowledgmentStatusExempt,
			"exempt_reason": reason,
			"updated_at":    t.now().UTC(),
		}).Error
		if err != nil {
			return docerr.FromDB(op, "document_acknowledgment", a.ID, err)
		}
		return tx.Where("id = ?", a.ID).First(&a).Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateOverdueAcknowledgments moves pending requirements whose deadline has
// passed to overdue and returns how many changed.
func (t *Tracker) UpdateOverdueAcknowledgments(ctx context.Context) (int64, error) {
	now := t.now().UTC()
	res := t.db.WithContext(ctx).
		Model(&models.DocumentAcknowledgment{}).
		Where("status = ? AND required_by IS NOT NULL AND required_by < ?", models.AcknowledgmentStatusPending, now).
		Updates(map[string]any{
			"status":     models.AcknowledgmentStatusOverdue,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, docerr.FromDB("distribution.UpdateOverdueAcknowledgments", "document_acknowledgment", "", res.Error)
	}
	if res.RowsAffected > 0 {
		t.logger.Info("marked acknowledgments overdue", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// RecordAcknowledgmentReminder increments the reminder counter for every
// outstanding requirement of a document and notifies those workers. It
// returns how many workers were reminded.
func (t *Tracker) RecordAcknowledgmentReminder(ctx context.Context, documentID string) (int64, error) {
	const op = "distribution.RecordAcknowledgmentReminder"

	var (
		doc     *models.Document
		pending []models.DocumentAcknowledgment
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = loadDistributable(ctx, tx, op, documentID)
		if err != nil {
			return err
		}
		outstanding := []models.AcknowledgmentStatus{models.AcknowledgmentStatusPending, models.AcknowledgmentStatusOverdue}
		err = tx.Where("document_id = ? AND document_version = ? AND status IN ?", doc.ID, doc.Version, outstanding).
			Find(&pending).Error
		if err != nil {
			return docerr.FromDB(op, "document_acknowledgment", doc.ID, err)
		}
		if len(pending) == 0 {
			return nil
		}
		ids := make([]string, len(pending))
		for i, a := range pending {
			ids[i] = a.ID
		}
		now := t.now().UTC()
		err = tx.Model(&models.DocumentAcknowledgment{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"reminder_count":   gorm.Expr("reminder_count + 1"),
				"last_reminder_at": now,
				"updated_at":       now,
			}).Error
		return docerr.FromDB(op, "document_acknowledgment", doc.ID, err)
	})
	if err != nil {
		return 0, err
	}

	msgs := make([]*notifications.NotificationMessage, 0, len(pending))
	for _, a := range pending {
		msg := docMessage(notifications.NotificationTypeAcknowledgmentReminder, doc, "Reminder",
			notifications.Recipient{ID: a.WorkerID})
		if a.Status == models.AcknowledgmentStatusOverdue {
			msg.Priority = notifications.PriorityHigh
		}
		msgs = append(msgs, msg)
	}
	notifications.Deliver(ctx, t.notifier, t.logger, msgs...)

	return int64(len(pending)), nil
}

// ListAcknowledgments returns a document's acknowledgment rows. An empty
// version covers every version.
func (t *Tracker) ListAcknowledgments(ctx context.Context, documentID, version string) ([]models.DocumentAcknowledgment, error) {
	q := t.db.WithContext(ctx).Where("document_id = ?", documentID)
	if version != "" {
		q = q.Where("document_version = ?", version)
	}
	var rows []models.DocumentAcknowledgment
	if err := q.Order("worker_id ASC").Find(&rows).Error; err != nil {
		return nil, docerr.FromDB("distribution.ListAcknowledgments", "document", documentID, err)
	}
	return rows, nil
}

// AcknowledgmentSummary counts a document's requirements by status. The
// completion rate excludes exempt workers.
func (t *Tracker) AcknowledgmentSummary(ctx context.Context, documentID, version string) (*AcknowledgmentStats, error) {
	rows, err := t.ListAcknowledgments(ctx, documentID, version)
	if err != nil {
		return nil, err
	}
	stats := &AcknowledgmentStats{}
	for _, a := range rows {
		stats.Total++
		switch a.Status {
		case models.AcknowledgmentStatusPending:
			stats.Pending++
		case models.AcknowledgmentStatusAcknowledged:
			stats.Acknowledged++
		case models.AcknowledgmentStatusOverdue:
			stats.Overdue++
		case models.AcknowledgmentStatusExempt:
			stats.Exempt++
		}
	}
	stats.CompletionRate = CompletionRate(stats.Acknowledged, stats.Total-stats.Exempt)
	return stats, nil
}
