package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createDoc(t *testing.T, db *gorm.DB, cn string, status models.DocumentStatus, next *time.Time) *models.Document {
	t.Helper()
	doc := &models.Document{
		CompanyID:      "acme",
		ControlNumber:  cn,
		TypeCode:       "POL",
		Title:          "Doc " + cn,
		Status:         status,
		NextReviewDate: next,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func ptr(t time.Time) *time.Time { return &t }

func TestNextReviewDate(t *testing.T) {
	annual := &models.DocumentType{ReviewFrequencyMonths: 12}
	biennial := &models.DocumentType{ReviewFrequencyMonths: 24}

	assert.Equal(t, day(2027, 3, 15), NextReviewDate(fixedNow, annual))
	assert.Equal(t, day(2028, 3, 15), NextReviewDate(fixedNow, biennial))
	// Unknown type falls back to the default frequency.
	assert.Equal(t, day(2027, 3, 15), NextReviewDate(fixedNow, nil))
	// Month arithmetic clamps to the end of the month.
	monthly := &models.DocumentType{ReviewFrequencyMonths: 1}
	assert.Equal(t, day(2026, 2, 28), NextReviewDate(day(2026, 1, 31), monthly))
}

func TestClassify_OverdueBoundary(t *testing.T) {
	today := models.DateOnly(fixedNow)

	bucket, days := Classify(today, today, 30)
	assert.Equal(t, BucketDueSoon, bucket, "due today is not overdue")
	assert.Equal(t, 0, days)

	bucket, days = Classify(today.AddDate(0, 0, -1), today, 30)
	assert.Equal(t, BucketOverdue, bucket)
	assert.Equal(t, -1, days)

	bucket, _ = Classify(today.AddDate(0, 0, 30), today, 30)
	assert.Equal(t, BucketDueSoon, bucket)

	bucket, _ = Classify(today.AddDate(0, 0, 31), today, 30)
	assert.Equal(t, BucketScheduled, bucket)
}

func TestListReviewsDue(t *testing.T) {
	db := dbtest.New(t)
	s := New(db, WithClock(clock))
	today := models.DateOnly(fixedNow)

	createDoc(t, db, "DOC-POL-0001", models.DocumentStatusActive, ptr(today.AddDate(0, 2, 0)))
	createDoc(t, db, "DOC-POL-0002", models.DocumentStatusActive, ptr(today))
	createDoc(t, db, "DOC-POL-0003", models.DocumentStatusActive, ptr(today.AddDate(0, 0, -1)))
	createDoc(t, db, "DOC-POL-0004", models.DocumentStatusObsolete, ptr(today.AddDate(0, 0, -100)))
	createDoc(t, db, "DOC-POL-0005", models.DocumentStatusDraft, nil)
	createDoc(t, db, "DOC-POL-0006", models.DocumentStatusApproved, ptr(today.AddDate(0, 0, 10)))

	items, err := s.ListReviewsDue(context.Background(), "acme", 30)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "DOC-POL-0003", items[0].Document.ControlNumber)
	assert.Equal(t, BucketOverdue, items[0].Bucket)
	assert.Equal(t, "DOC-POL-0002", items[1].Document.ControlNumber)
	assert.Equal(t, BucketDueSoon, items[1].Bucket)
	assert.Equal(t, "DOC-POL-0006", items[2].Document.ControlNumber)
	assert.Equal(t, BucketDueSoon, items[2].Bucket)
	assert.Equal(t, 10, items[2].DaysUntilDue)
	assert.Equal(t, "DOC-POL-0001", items[3].Document.ControlNumber)
	assert.Equal(t, BucketScheduled, items[3].Bucket)

	other, err := s.ListReviewsDue(context.Background(), "globex", 30)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReviewLifecycle(t *testing.T) {
	db := dbtest.New(t)
	dbtest.SeedTypes(t, db)
	rec := notifications.NewRecorder(nil)
	s := New(db, WithClock(clock), WithNotifier(rec))
	ctx := context.Background()

	doc := createDoc(t, db, "DOC-POL-0001", models.DocumentStatusActive, ptr(models.DateOnly(fixedNow)))

	r, err := s.CreateReview(ctx, CreateInput{DocumentID: doc.ID, AssignedTo: "rita", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusScheduled, r.Status)
	assert.Equal(t, models.ReviewTypeManual, r.ReviewType)
	assert.True(t, r.DueDate.Equal(models.DateOnly(fixedNow)))
	assert.Len(t, rec.OfType(notifications.NotificationTypeReviewAssigned), 1)

	r, err = s.StartReview(ctx, r.ID, "rita")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusInProgress, r.Status)
	assert.NotNil(t, r.StartedAt)

	_, err = s.StartReview(ctx, r.ID, "rita")
	assert.True(t, docerr.IsPrecondition(err))

	r, err = s.CompleteReview(ctx, CompleteInput{
		ReviewID:    r.ID,
		Actor:       "rita",
		Outcome:     models.ReviewOutcomeMinorUpdate,
		Notes:       "update contact list",
		ActionItems: []string{"update phone numbers"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, r.Status)
	assert.Equal(t, models.ReviewOutcomeMinorUpdate, r.Outcome)
	assert.Equal(t, models.StringArray{"update phone numbers"}, r.ActionItems)
	require.NotNil(t, r.NextReviewDate)

	updated, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.NextReviewDate)
	assert.True(t, updated.NextReviewDate.Equal(day(2027, 3, 15)))
	assert.Equal(t, models.DocumentStatusActive, updated.Status)
	assert.Equal(t, lifecycle.ActionReviewCompleted, updated.AuditTrail[len(updated.AuditTrail)-1].Action)

	_, err = s.CompleteReview(ctx, CompleteInput{ReviewID: r.ID, Outcome: models.ReviewOutcomeNoChange})
	assert.True(t, docerr.IsPrecondition(err))

	reviews, err := s.ListReviews(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestCompleteReview_SuppliedDateAndObsolete(t *testing.T) {
	db := dbtest.New(t)
	s := New(db, WithClock(clock))
	ctx := context.Background()

	doc := createDoc(t, db, "DOC-POL-0001", models.DocumentStatusActive, nil)
	r, err := s.CreateReview(ctx, CreateInput{DocumentID: doc.ID, ReviewType: models.ReviewTypeRegulatory})
	require.NoError(t, err)

	next := day(2026, 9, 1)
	_, err = s.CompleteReview(ctx, CompleteInput{ReviewID: r.ID, Actor: "rita", Outcome: models.ReviewOutcomeExtendReview, NextReviewDate: &next})
	require.NoError(t, err)
	updated, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.True(t, updated.NextReviewDate.Equal(next))

	r, err = s.CreateReview(ctx, CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)
	assert.True(t, r.DueDate.Equal(next))

	_, err = s.CompleteReview(ctx, CompleteInput{ReviewID: r.ID, Actor: "rita", Outcome: models.ReviewOutcomeObsolete})
	require.NoError(t, err)
	updated, err = models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusObsolete, updated.Status)

	_, err = s.CreateReview(ctx, CreateInput{DocumentID: doc.ID})
	assert.True(t, docerr.IsPrecondition(err))

	_, err = s.CompleteReview(ctx, CompleteInput{ReviewID: r.ID, Outcome: "later"})
	assert.True(t, docerr.IsInvalid(err))
}

func TestCancelAndMarkOverdue(t *testing.T) {
	db := dbtest.New(t)
	rec := notifications.NewRecorder(nil)
	s := New(db, WithClock(clock), WithNotifier(rec))
	ctx := context.Background()
	today := models.DateOnly(fixedNow)

	doc := createDoc(t, db, "DOC-POL-0001", models.DocumentStatusActive, nil)

	late, err := s.CreateReview(ctx, CreateInput{DocumentID: doc.ID, DueDate: today.AddDate(0, 0, -1), AssignedTo: "rita"})
	require.NoError(t, err)
	dueToday, err := s.CreateReview(ctx, CreateInput{DocumentID: doc.ID, DueDate: today})
	require.NoError(t, err)
	cancelled, err := s.CreateReview(ctx, CreateInput{DocumentID: doc.ID, DueDate: today.AddDate(0, 0, -5)})
	require.NoError(t, err)

	cancelled, err = s.CancelReview(ctx, cancelled.ID, "admin", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCancelled, cancelled.Status)
	assert.Contains(t, cancelled.ReviewerNotes, "duplicate")

	n, err := s.MarkOverdueReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetReview(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusOverdue, got.Status)

	got, err = s.GetReview(ctx, dueToday.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusScheduled, got.Status)

	assert.Len(t, rec.OfType(notifications.NotificationTypeReviewOverdue), 1)

	// Overdue reviews can still be started.
	_, err = s.StartReview(ctx, late.ID, "rita")
	require.NoError(t, err)

	n, err = s.MarkOverdueReviews(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
