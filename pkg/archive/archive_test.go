package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/revision"
)

var fixedNow = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *Manager) {
	t.Helper()
	db := dbtest.New(t)
	return db, New(db, WithClock(func() time.Time { return fixedNow }))
}

func createDoc(t *testing.T, db *gorm.DB, status models.DocumentStatus) *models.Document {
	t.Helper()
	review := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := &models.Document{
		CompanyID:      "acme",
		ControlNumber:  "DOC-POL-0001",
		TypeCode:       "POL",
		Title:          "Health and Safety Policy",
		Status:         status,
		Version:        "2.1",
		FileRef:        "files/pol-0001.pdf",
		Tags:           models.StringArray{"policy", "commitment"},
		AuditElements:  models.StringArray{"1"},
		NextReviewDate: &review,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func TestArchiveDocument(t *testing.T) {
	db, m := setup(t)
	ctx := context.Background()
	doc := createDoc(t, db, models.DocumentStatusActive)

	a, err := m.ArchiveDocument(ctx, DocumentInput{DocumentID: doc.ID, Actor: "records", Notes: "site closed"})
	require.NoError(t, err)

	assert.Equal(t, models.ArchiveReasonManual, a.Reason)
	assert.Equal(t, models.DefaultRetentionYears, a.RetentionYears)
	assert.True(t, a.RetainUntil.Equal(fixedNow.AddDate(7, 0, 0)))
	assert.Equal(t, models.DocumentStatusActive, a.StatusAtArchive)
	assert.Equal(t, "DOC-POL-0001", a.ControlNumber)
	assert.Equal(t, "2.1", a.Version)
	assert.Nil(t, a.RevisionID)

	live, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusArchived, live.Status)
	last := live.AuditTrail[len(live.AuditTrail)-1]
	assert.Equal(t, "archived", last.Action)
	assert.Equal(t, models.DocumentStatusActive, last.From)

	// Archiving twice is refused.
	_, err = m.ArchiveDocument(ctx, DocumentInput{DocumentID: doc.ID})
	assert.True(t, docerr.IsPrecondition(err))
}

func TestArchiveDocument_ObsoleteStaysObsolete(t *testing.T) {
	db, m := setup(t)
	doc := createDoc(t, db, models.DocumentStatusObsolete)

	a, err := m.ArchiveDocument(context.Background(), DocumentInput{
		DocumentID:     doc.ID,
		Reason:         models.ArchiveReasonSuperseded,
		RetentionYears: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusObsolete, a.StatusAtArchive)
	assert.Equal(t, 10, a.RetentionYears)

	live, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusObsolete, live.Status)
	require.NotEmpty(t, live.AuditTrail)
	assert.Equal(t, "archived", live.AuditTrail[len(live.AuditTrail)-1].Action)
}

func TestArchiveDocument_Errors(t *testing.T) {
	db, m := setup(t)
	ctx := context.Background()
	doc := createDoc(t, db, models.DocumentStatusDraft)

	_, err := m.ArchiveDocument(ctx, DocumentInput{DocumentID: "missing"})
	assert.True(t, docerr.IsNotFound(err))

	_, err = m.ArchiveDocument(ctx, DocumentInput{DocumentID: doc.ID, Reason: "bored"})
	assert.True(t, docerr.IsInvalid(err))
}

func TestArchive_IsImmutable(t *testing.T) {
	db, m := setup(t)
	ctx := context.Background()
	doc := createDoc(t, db, models.DocumentStatusActive)

	a, err := m.ArchiveDocument(ctx, DocumentInput{DocumentID: doc.ID})
	require.NoError(t, err)

	// Later edits to the live document do not reach the snapshot.
	require.NoError(t, db.Model(&models.Document{}).Where("id = ?", doc.ID).
		Update("title", "Renamed").Error)

	stored, err := m.GetArchive(ctx, a.ID)
	require.NoError(t, err)
	snap, err := DecodeSnapshot(stored)
	require.NoError(t, err)
	assert.Equal(t, "Health and Safety Policy", snap.Document.Title)
	assert.Equal(t, "DOC-POL-0001", snap.Document.ControlNumber)
	assert.Equal(t, "active", snap.Document.Status)
	assert.Equal(t, []string{"policy", "commitment"}, snap.Document.Tags)
	require.NotNil(t, snap.Document.NextReviewDate)
	assert.True(t, snap.Document.NextReviewDate.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, snap.Revision)

	err = db.Model(stored).Update("title", "tampered").Error
	assert.True(t, errors.Is(err, models.ErrArchiveImmutable))

	err = db.Delete(stored).Error
	assert.True(t, errors.Is(err, models.ErrArchiveImmutable))

	again, err := m.GetArchive(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Health and Safety Policy", again.Title)
}

func TestArchiveVersion(t *testing.T) {
	db, m := setup(t)
	ctx := context.Background()
	doc := createDoc(t, db, models.DocumentStatusActive)

	rev, err := revision.New(db).CreateRevision(ctx, revision.CreateInput{
		DocumentID: doc.ID,
		ChangeType: models.ChangeTypeMinorEdit,
		Summary:    "Updated contacts",
		FileRef:    "files/pol-0001-v2.2.pdf",
		Actor:      "author",
	})
	require.NoError(t, err)

	a, err := m.ArchiveVersion(ctx, VersionInput{RevisionID: rev.ID, Reason: models.ArchiveReasonSuperseded, DestructionHold: true})
	require.NoError(t, err)
	require.NotNil(t, a.RevisionID)
	assert.Equal(t, rev.ID, *a.RevisionID)
	assert.Equal(t, "2.2", a.Version)
	assert.Equal(t, "files/pol-0001-v2.2.pdf", a.FileRef)
	assert.True(t, a.DestructionHold)

	// The document is untouched.
	live, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusUnderRevision, live.Status)

	snap, err := DecodeSnapshot(a)
	require.NoError(t, err)
	require.NotNil(t, snap.Revision)
	assert.Equal(t, "2.2", snap.Revision.Version)
	assert.Equal(t, "2.1", snap.Revision.PreviousVersion)
	assert.Equal(t, 1, snap.Revision.RevisionNumber)
	assert.Equal(t, doc.ID, snap.Document.ID)

	_, err = m.ArchiveVersion(ctx, VersionInput{RevisionID: "missing"})
	assert.True(t, docerr.IsNotFound(err))
}

func TestListAndDestructionEligibility(t *testing.T) {
	db, _ := setup(t)
	ctx := context.Background()

	// Archived on different dates by different managers.
	old := New(db, WithClock(func() time.Time { return fixedNow.AddDate(-8, 0, 0) }))
	recent := New(db, WithClock(func() time.Time { return fixedNow }))

	d1 := createDoc(t, db, models.DocumentStatusActive)
	d2 := &models.Document{CompanyID: "acme", ControlNumber: "DOC-SWP-0001", TypeCode: "SWP", Title: "Lockout", Status: models.DocumentStatusActive}
	require.NoError(t, db.Create(d2).Error)
	d3 := &models.Document{CompanyID: "acme", ControlNumber: "DOC-SWP-0002", TypeCode: "SWP", Title: "Hot work", Status: models.DocumentStatusObsolete}
	require.NoError(t, db.Create(d3).Error)

	expired, err := old.ArchiveDocument(ctx, DocumentInput{DocumentID: d1.ID, Reason: models.ArchiveReasonExpired})
	require.NoError(t, err)
	_, err = old.ArchiveDocument(ctx, DocumentInput{DocumentID: d2.ID, DestructionHold: true})
	require.NoError(t, err)
	_, err = recent.ArchiveDocument(ctx, DocumentInput{DocumentID: d3.ID, Reason: models.ArchiveReasonObsolete})
	require.NoError(t, err)

	all, err := recent.ListArchives(ctx, Filter{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, d3.ID, all[0].DocumentID)

	byReason, err := recent.ListArchives(ctx, Filter{Reason: models.ArchiveReasonExpired})
	require.NoError(t, err)
	require.Len(t, byReason, 1)
	assert.Equal(t, d1.ID, byReason[0].DocumentID)

	versions, err := recent.ListArchives(ctx, Filter{VersionsOnly: true})
	require.NoError(t, err)
	assert.Empty(t, versions)

	eligible, err := recent.EligibleForDestruction(ctx, "acme", fixedNow)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, expired.ID, eligible[0].ID)
}
