// Package review schedules periodic document reviews and records their
// outcomes.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

// DefaultDueSoonDays is the window used by ListReviewsDue when none is given.
const DefaultDueSoonDays = 30

// Bucket classifies a document's review due date.
type Bucket string

const (
	BucketOverdue   Bucket = "overdue"
	BucketDueSoon   Bucket = "due_soon"
	BucketScheduled Bucket = "scheduled"
)

// NextReviewDate returns the review date that follows from, using the
// type's review frequency.
func NextReviewDate(from time.Time, docType *models.DocumentType) time.Time {
	return models.DateOnly(models.AddMonths(models.DateOnly(from), docType.FrequencyMonths()))
}

// Classify buckets a review date relative to today. A review due today is
// not overdue.
func Classify(reviewDate, today time.Time, withinDays int) (Bucket, int) {
	days := models.DaysBetween(today, reviewDate)
	switch {
	case days < 0:
		return BucketOverdue, days
	case days <= withinDays:
		return BucketDueSoon, days
	default:
		return BucketScheduled, days
	}
}

// DueItem is one entry of ListReviewsDue.
type DueItem struct {
	Document     models.Document `json:"document"`
	Bucket       Bucket          `json:"bucket"`
	DaysUntilDue int             `json:"daysUntilDue"`
}

// CreateInput schedules a review.
type CreateInput struct {
	DocumentID string
	ReviewType models.ReviewType

	// DueDate defaults to the document's next review date, or today.
	DueDate    time.Time
	AssignedTo string
	Actor      string
}

// CompleteInput records a review outcome.
type CompleteInput struct {
	ReviewID    string
	Actor       string
	Outcome     models.ReviewOutcome
	Notes       string
	ActionItems []string

	// NextReviewDate is written back to the document. When nil it is
	// computed from today and the type's review frequency.
	NextReviewDate *time.Time
}

// Scheduler manages document reviews.
type Scheduler struct {
	db       *gorm.DB
	logger   hclog.Logger
	notifier notifications.Notifier
	now      func() time.Time
}

// Option is a functional option for creating a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the notifier for assignments and overdue reviews.
func WithNotifier(n notifications.Notifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a review scheduler.
func New(db *gorm.DB, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:       db,
		logger:   hclog.NewNullLogger(),
		notifier: notifications.NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("review")
	return s
}

func (s *Scheduler) today() time.Time {
	return models.DateOnly(s.now())
}

// CreateReview schedules a review for a non-terminal document.
func (s *Scheduler) CreateReview(ctx context.Context, in CreateInput) (*models.DocumentReview, error) {
	const op = "review.CreateReview"

	if in.DocumentID == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("document id is required"))
	}

	var (
		r   *models.DocumentReview
		doc *models.Document
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, in.DocumentID)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			return docerr.Precondition(op, "document", doc.ID, "document is %s", doc.Status)
		}

		due := in.DueDate
		if due.IsZero() {
			if doc.NextReviewDate != nil {
				due = *doc.NextReviewDate
			} else {
				due = s.today()
			}
		}
		reviewType := in.ReviewType
		if reviewType == "" {
			reviewType = models.ReviewTypeManual
		}

		r = &models.DocumentReview{
			DocumentID: doc.ID,
			ReviewType: reviewType,
			DueDate:    models.DateOnly(due),
			AssignedTo: in.AssignedTo,
			Status:     models.ReviewStatusScheduled,
		}
		return docerr.FromDB(op, "document_review", doc.ID, tx.Create(r).Error)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("scheduled review",
		"review_id", r.ID,
		"document_id", r.DocumentID,
		"due_date", r.DueDate.Format("2006-01-02"),
	)
	if r.AssignedTo != "" {
		msg := notifications.NewMessage(notifications.NotificationTypeReviewAssigned,
			fmt.Sprintf("Review assigned: %s %s", doc.ControlNumber, doc.Title),
			notifications.Recipient{ID: r.AssignedTo}).
			ForDocument(doc.CompanyID, doc.ID, doc.ControlNumber, doc.Version)
		msg.UserID = in.Actor
		msg.Context = map[string]any{"due_date": r.DueDate.Format("2006-01-02")}
		notifications.Deliver(ctx, s.notifier, s.logger, msg)
	}
	return r, nil
}

// GetReview loads a review.
func (s *Scheduler) GetReview(ctx context.Context, id string) (*models.DocumentReview, error) {
	var r models.DocumentReview
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, docerr.FromDB("review.GetReview", "document_review", id, err)
	}
	return &r, nil
}

// ListReviews returns a document's reviews, most recent due date first.
func (s *Scheduler) ListReviews(ctx context.Context, documentID string) ([]models.DocumentReview, error) {
	var reviews []models.DocumentReview
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("due_date DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, docerr.FromDB("review.ListReviews", "document", documentID, err)
	}
	return reviews, nil
}

// StartReview moves a scheduled or overdue review to in_progress.
func (s *Scheduler) StartReview(ctx context.Context, reviewID, actor string) (*models.DocumentReview, error) {
	const op = "review.StartReview"

	var r models.DocumentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", reviewID).First(&r).Error; err != nil {
			return docerr.FromDB(op, "document_review", reviewID, err)
		}
		if r.Status != models.ReviewStatusScheduled && r.Status != models.ReviewStatusOverdue {
			return docerr.Precondition(op, "document_review", r.ID, "review is %s", r.Status)
		}
		now := s.now().UTC()
		updates := map[string]any{
			"status":     models.ReviewStatusInProgress,
			"started_at": now,
			"updated_at": now,
		}
		if r.AssignedTo == "" && actor != "" {
			updates["assigned_to"] = actor
		}
		if err := tx.Model(&r).Updates(updates).Error; err != nil {
			return docerr.FromDB(op, "document_review", r.ID, err)
		}
		return tx.Where("id = ?", r.ID).First(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CompleteReview records the outcome and writes the next review date back
// onto the document. An obsolete outcome also obsoletes the document.
func (s *Scheduler) CompleteReview(ctx context.Context, in CompleteInput) (*models.DocumentReview, error) {
	const op = "review.CompleteReview"

	switch in.Outcome {
	case models.ReviewOutcomeNoChange, models.ReviewOutcomeMinorUpdate, models.ReviewOutcomeMajorRevision,
		models.ReviewOutcomeObsolete, models.ReviewOutcomeExtendReview:
	default:
		return nil, docerr.Invalid(op, fmt.Errorf("unknown review outcome %q", in.Outcome))
	}

	var r models.DocumentReview
	err := lifecycle.RetryConflicts(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", in.ReviewID).First(&r).Error; err != nil {
				return docerr.FromDB(op, "document_review", in.ReviewID, err)
			}
			if !r.IsOpen() {
				return docerr.Precondition(op, "document_review", r.ID, "review is %s", r.Status)
			}

			doc, err := lifecycle.Load(ctx, tx, op, r.DocumentID)
			if err != nil {
				return err
			}
			if doc.Status.IsTerminal() {
				return docerr.Precondition(op, "document", doc.ID, "document is %s", doc.Status)
			}

			next := in.NextReviewDate
			if next == nil {
				docType, err := models.GetDocumentType(tx, doc.TypeCode)
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return docerr.FromDB(op, "document_type", doc.TypeCode, err)
				}
				d := NextReviewDate(s.today(), docType)
				next = &d
			} else {
				d := models.DateOnly(*next)
				next = &d
			}

			now := s.now().UTC()
			err = tx.Model(&r).Updates(map[string]any{
				"status":           models.ReviewStatusCompleted,
				"outcome":          in.Outcome,
				"reviewer_notes":   in.Notes,
				"action_items":     models.StringArray(in.ActionItems),
				"next_review_date": *next,
				"completed_at":     now,
				"completed_by":     in.Actor,
				"updated_at":       now,
			}).Error
			if err != nil {
				return docerr.FromDB(op, "document_review", r.ID, err)
			}

			change := lifecycle.Change{
				Actor:  in.Actor,
				Action: lifecycle.ActionReviewCompleted,
				Note:   fmt.Sprintf("review %s: %s", r.ID, in.Outcome),
				Fields: map[string]any{"next_review_date": *next},
				At:     now,
			}
			if in.Outcome == models.ReviewOutcomeObsolete {
				change.To = models.DocumentStatusObsolete
			}
			if err := lifecycle.Apply(ctx, tx, doc, change); err != nil {
				return err
			}
			return tx.Where("id = ?", r.ID).First(&r).Error
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("completed review",
		"review_id", r.ID,
		"document_id", r.DocumentID,
		"outcome", r.Outcome,
	)
	return &r, nil
}

// CancelReview cancels an open review.
func (s *Scheduler) CancelReview(ctx context.Context, reviewID, actor, reason string) (*models.DocumentReview, error) {
	const op = "review.CancelReview"

	var r models.DocumentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", reviewID).First(&r).Error; err != nil {
			return docerr.FromDB(op, "document_review", reviewID, err)
		}
		if !r.IsOpen() {
			return docerr.Precondition(op, "document_review", r.ID, "review is %s", r.Status)
		}
		notes := r.ReviewerNotes
		if reason != "" {
			notes = fmt.Sprintf("cancelled by %s: %s", actor, reason)
		}
		err := tx.Model(&r).Updates(map[string]any{
			"status":         models.ReviewStatusCancelled,
			"reviewer_notes": notes,
			"updated_at":     s.now().UTC(),
		}).Error
		if err != nil {
			return docerr.FromDB(op, "document_review", r.ID, err)
		}
		return tx.Where("id = ?", r.ID).First(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkOverdueReviews moves scheduled reviews whose due date is before today
// to overdue and returns how many changed.
func (s *Scheduler) MarkOverdueReviews(ctx context.Context) (int64, error) {
	const op = "review.MarkOverdueReviews"
	today := s.today()

	var overdue []models.DocumentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status = ? AND due_date < ?", models.ReviewStatusScheduled, today).
			Find(&overdue).Error
		if err != nil {
			return docerr.FromDB(op, "document_review", "", err)
		}
		if len(overdue) == 0 {
			return nil
		}
		ids := make([]string, len(overdue))
		for i, r := range overdue {
			ids[i] = r.ID
		}
		err = tx.Model(&models.DocumentReview{}).
			Where("id IN ? AND status = ?", ids, models.ReviewStatusScheduled).
			Updates(map[string]any{"status": models.ReviewStatusOverdue, "updated_at": s.now().UTC()}).Error
		return docerr.FromDB(op, "document_review", "", err)
	})
	if err != nil {
		return 0, err
	}

	for _, r := range overdue {
		if r.AssignedTo == "" {
			continue
		}
		msg := notifications.NewMessage(notifications.NotificationTypeReviewOverdue,
			"Document review overdue", notifications.Recipient{ID: r.AssignedTo})
		msg.DocumentID = r.DocumentID
		msg.Priority = notifications.PriorityHigh
		msg.Context = map[string]any{"review_id": r.ID, "due_date": r.DueDate.Format("2006-01-02")}
		notifications.Deliver(ctx, s.notifier, s.logger, msg)
	}

	if len(overdue) > 0 {
		s.logger.Info("marked reviews overdue", "count", len(overdue))
	}
	return int64(len(overdue)), nil
}

// ListReviewsDue buckets every non-terminal document of a company that has
// a next review date, sorted by that date. withinDays <= 0 uses
// DefaultDueSoonDays.
func (s *Scheduler) ListReviewsDue(ctx context.Context, companyID string, withinDays int) ([]DueItem, error) {
	const op = "review.ListReviewsDue"

	if withinDays <= 0 {
		withinDays = DefaultDueSoonDays
	}

	q := s.db.WithContext(ctx).
		Where("next_review_date IS NOT NULL").
		Where("status NOT IN ?", []models.DocumentStatus{models.DocumentStatusObsolete, models.DocumentStatusArchived})
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}

	var docs []models.Document
	if err := q.Order("next_review_date ASC").Find(&docs).Error; err != nil {
		return nil, docerr.FromDB(op, "document", companyID, err)
	}

	today := s.today()
	items := make([]DueItem, 0, len(docs))
	for _, d := range docs {
		bucket, days := Classify(*d.NextReviewDate, today, withinDays)
		items = append(items, DueItem{Document: d, Bucket: bucket, DaysUntilDue: days})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Document.NextReviewDate.Before(*items[j].Document.NextReviewDate)
	})
	return items, nil
}
