package distribution

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

// Recipient identifies who receives a distribution.
type Recipient struct {
	ID    string
	Name  string
	Email string
}

// DistributeInput fans a document out to recipients.
type DistributeInput struct {
	DocumentID   string
	Recipients   []Recipient
	Method       models.DistributionMethod
	RequiresQuiz bool
	Actor        string
}

// AcknowledgeInput records a recipient's acknowledgment of a distribution.
type AcknowledgeInput struct {
	DistributionID string
	Method         string
	Signature      string

	// QuizScore is the recipient's score out of 100, if a quiz was taken.
	QuizScore *int
}

// DistributionStats summarizes the distributions of a document.
type DistributionStats struct {
	Total            int64   `json:"total"`
	Acknowledged     int64   `json:"acknowledged"`
	Pending          int64   `json:"pending"`
	QuizRequired     int64   `json:"quizRequired"`
	QuizTaken        int64   `json:"quizTaken"`
	QuizPassed       int64   `json:"quizPassed"`
	QuizFailed       int64   `json:"quizFailed"`
	AverageQuizScore float64 `json:"averageQuizScore"`
	CompletionRate   float64 `json:"completionRate"`
}

func validMethod(m models.DistributionMethod) bool {
	switch m {
	case models.DistributionMethodEmail, models.DistributionMethodPrint, models.DistributionMethodPortal,
		models.DistributionMethodMeeting, models.DistributionMethodToolboxTalk:
		return true
	}
	return false
}

// DistributeDocument creates one distribution per recipient for the
// document's current version.
func (t *Tracker) DistributeDocument(ctx context.Context, in DistributeInput) ([]models.DocumentDistribution, error) {
	const op = "distribution.DistributeDocument"

	if len(in.Recipients) == 0 {
		return nil, docerr.Invalid(op, fmt.Errorf("at least one recipient is required"))
	}
	if !validMethod(in.Method) {
		return nil, docerr.Invalid(op, fmt.Errorf("unknown distribution method %q", in.Method))
	}
	for _, r := range in.Recipients {
		if r.ID == "" {
			return nil, docerr.Invalid(op, fmt.Errorf("recipient id is required"))
		}
	}

	var (
		doc  *models.Document
		rows []models.DocumentDistribution
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = loadDistributable(ctx, tx, op, in.DocumentID)
		if err != nil {
			return err
		}

		now := t.now().UTC()
		rows = make([]models.DocumentDistribution, 0, len(in.Recipients))
		for _, r := range in.Recipients {
			rows = append(rows, models.DocumentDistribution{
				DocumentID:      doc.ID,
				DocumentVersion: doc.Version,
				RecipientID:     r.ID,
				RecipientName:   r.Name,
				RecipientEmail:  r.Email,
				Method:          in.Method,
				RequiresQuiz:    in.RequiresQuiz,
				DistributedBy:   in.Actor,
				DistributedAt:   now,
			})
		}
		return docerr.FromDB(op, "document_distribution", doc.ID, tx.Create(&rows).Error)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("distributed document",
		"document_id", doc.ID,
		"version", doc.Version,
		"method", in.Method,
		"recipients", len(rows),
	)

	msgs := make([]*notifications.NotificationMessage, 0, len(rows))
	for _, row := range rows {
		msg := docMessage(notifications.NotificationTypeDocumentDistributed, doc, "Document distributed",
			notifications.Recipient{ID: row.RecipientID, Name: row.RecipientName, Email: row.RecipientEmail})
		msg.UserID = in.Actor
		msg.Context = map[string]any{
			"distribution_id": row.ID,
			"method":          string(row.Method),
			"requires_quiz":   row.RequiresQuiz,
		}
		msgs = append(msgs, msg)
	}
	notifications.Deliver(ctx, t.notifier, t.logger, msgs...)

	return rows, nil
}

// AcknowledgeDistribution marks a distribution acknowledged. A supplied quiz
// score passes at models.QuizPassScore or above.
func (t *Tracker) AcknowledgeDistribution(ctx context.Context, in AcknowledgeInput) (*models.DocumentDistribution, error) {
	const op = "distribution.AcknowledgeDistribution"

	if in.QuizScore != nil && (*in.QuizScore < 0 || *in.QuizScore > 100) {
		return nil, docerr.Invalid(op, fmt.Errorf("quiz score %d out of range", *in.QuizScore))
	}

	var d models.DocumentDistribution
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", in.DistributionID).First(&d).Error; err != nil {
			return docerr.FromDB(op, "document_distribution", in.DistributionID, err)
		}

		now := t.now().UTC()
		updates := map[string]any{
			"acknowledged":          true,
			"acknowledged_at":       now,
			"acknowledgment_method": in.Method,
			"signature":             in.Signature,
			"updated_at":            now,
		}
		if in.QuizScore != nil {
			updates["quiz_score"] = *in.QuizScore
			updates["quiz_passed"] = *in.QuizScore >= models.QuizPassScore
		}
		if err := tx.Model(&d).Updates(updates).Error; err != nil {
			return docerr.FromDB(op, "document_distribution", d.ID, err)
		}
		return tx.Where("id = ?", d.ID).First(&d).Error
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecordDistributionReminder increments the reminder counter of an
// unacknowledged distribution and notifies the recipient.
func (t *Tracker) RecordDistributionReminder(ctx context.Context, distributionID string) (*models.DocumentDistribution, error) {
	const op = "distribution.RecordDistributionReminder"

	var (
		d   models.DocumentDistribution
		doc *models.Document
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", distributionID).First(&d).Error; err != nil {
			return docerr.FromDB(op, "document_distribution", distributionID, err)
		}
		if d.Acknowledged {
			return docerr.Precondition(op, "document_distribution", d.ID, "already acknowledged")
		}
		var err error
		if doc, err = loadDistributable(ctx, tx, op, d.DocumentID); err != nil {
			return err
		}
		now := t.now().UTC()
		err = tx.Model(&d).Updates(map[string]any{
			"reminder_count":   gorm.Expr("reminder_count + 1"),
			"last_reminder_at": now,
			"updated_at":       now,
		}).Error
		if err != nil {
			return docerr.FromDB(op, "document_distribution", d.ID, err)
		}
		return tx.Where("id = ?", d.ID).First(&d).Error
	})
	if err != nil {
		return nil, err
	}

	msg := docMessage(notifications.NotificationTypeDistributionReminder, doc, "Reminder",
		notifications.Recipient{ID: d.RecipientID, Name: d.RecipientName, Email: d.RecipientEmail})
	msg.Context = map[string]any{"distribution_id": d.ID, "reminder_count": d.ReminderCount}
	notifications.Deliver(ctx, t.notifier, t.logger, msg)

	return &d, nil
}

// ListDistributions returns a document's distributions, oldest first.
func (t *Tracker) ListDistributions(ctx context.Context, documentID string) ([]models.DocumentDistribution, error) {
	var rows []models.DocumentDistribution
	err := t.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("distributed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, docerr.FromDB("distribution.ListDistributions", "document", documentID, err)
	}
	return rows, nil
}

// DistributionSummary summarizes a document's distributions. An empty
// version covers every version.
func (t *Tracker) DistributionSummary(ctx context.Context, documentID, version string) (*DistributionStats, error) {
	q := t.db.WithContext(ctx).Where("document_id = ?", documentID)
	if version != "" {
		q = q.Where("document_version = ?", version)
	}
	var rows []models.DocumentDistribution
	if err := q.Find(&rows).Error; err != nil {
		return nil, docerr.FromDB("distribution.DistributionSummary", "document", documentID, err)
	}

	stats := &DistributionStats{}
	var scoreSum int64
	for _, d := range rows {
		stats.Total++
		if d.Acknowledged {
			stats.Acknowledged++
		}
		if d.RequiresQuiz {
			stats.QuizRequired++
		}
		if d.QuizScore != nil {
			stats.QuizTaken++
			scoreSum += int64(*d.QuizScore)
			if d.QuizPassed != nil && *d.QuizPassed {
				stats.QuizPassed++
			} else {
				stats.QuizFailed++
			}
		}
	}
	stats.Pending = stats.Total - stats.Acknowledged
	if stats.QuizTaken > 0 {
		stats.AverageQuizScore = float64(scoreSum) / float64(stats.QuizTaken)
	}
	stats.CompletionRate = CompletionRate(stats.Acknowledged, stats.Total)
	return stats, nil
}
