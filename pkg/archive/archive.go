// Package archive writes immutable retention snapshots of documents and
// document versions.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// DocumentInput archives a whole document.
type DocumentInput struct {
	DocumentID      string
	Reason          models.ArchiveReason
	RetentionYears  int
	DestructionHold bool
	Actor           string
	Notes           string
}

// VersionInput archives one revision of a document.
type VersionInput struct {
	RevisionID      string
	Reason          models.ArchiveReason
	RetentionYears  int
	DestructionHold bool
	Actor           string
	Notes           string
}

// Filter selects archives.
type Filter struct {
	CompanyID  string
	DocumentID string
	Reason     models.ArchiveReason

	// VersionsOnly limits results to version archives.
	VersionsOnly bool
}

// Manager writes and reads archives.
type Manager struct {
	db             *gorm.DB
	logger         hclog.Logger
	retentionYears int
	now            func() time.Time
}

// Option is a functional option for creating a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRetentionYears sets the default retention period.
func WithRetentionYears(years int) Option {
	return func(m *Manager) {
		if years > 0 {
			m.retentionYears = years
		}
	}
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates an archive manager.
func New(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{
		db:             db,
		logger:         hclog.NewNullLogger(),
		retentionYears: models.DefaultRetentionYears,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("archive")
	return m
}

func (m *Manager) retention(years int) int {
	if years > 0 {
		return years
	}
	return m.retentionYears
}

func reasonOrDefault(op string, r models.ArchiveReason) (models.ArchiveReason, error) {
	if r == "" {
		return models.ArchiveReasonManual, nil
	}
	if !r.Valid() {
		return "", docerr.Invalid(op, fmt.Errorf("unknown archive reason %q", r))
	}
	return r, nil
}

// ArchiveDocument snapshots a document and retires it to archived. An
// obsolete document keeps its status. The live record is never deleted.
func (m *Manager) ArchiveDocument(ctx context.Context, in DocumentInput) (*models.DocumentArchive, error) {
	var a *models.DocumentArchive
	err := lifecycle.RetryConflicts(ctx, func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			a, err = m.ArchiveDocumentTx(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("archived document",
		"archive_id", a.ID,
		"document_id", a.DocumentID,
		"control_number", a.ControlNumber,
		"reason", a.Reason,
		"retain_until", a.RetainUntil.Format("2006-01-02"),
	)
	return a, nil
}

// ArchiveDocumentTx is ArchiveDocument inside the caller's transaction.
func (m *Manager) ArchiveDocumentTx(ctx context.Context, tx *gorm.DB, in DocumentInput) (*models.DocumentArchive, error) {
	const op = "archive.ArchiveDocument"

	reason, err := reasonOrDefault(op, in.Reason)
	if err != nil {
		return nil, err
	}
	doc, err := lifecycle.Load(ctx, tx, op, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.DocumentStatusArchived {
		return nil, docerr.Precondition(op, "document", doc.ID, "document is already archived")
	}

	snapshot, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error marshaling document snapshot: %w", err)
	}

	now := m.now().UTC()
	years := m.retention(in.RetentionYears)
	a := &models.DocumentArchive{
		DocumentID:      doc.ID,
		CompanyID:       doc.CompanyID,
		ControlNumber:   doc.ControlNumber,
		TypeCode:        doc.TypeCode,
		Title:           doc.Title,
		Version:         doc.Version,
		StatusAtArchive: doc.Status,
		FileRef:         doc.FileRef,
		Snapshot:        models.JSON(snapshot),
		Reason:          reason,
		RetentionYears:  years,
		RetainUntil:     now.AddDate(years, 0, 0),
		DestructionHold: in.DestructionHold,
		ArchivedBy:      in.Actor,
		ArchivedAt:      now,
		Notes:           in.Notes,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		return nil, docerr.FromDB(op, "document_archive", doc.ID, err)
	}

	change := lifecycle.Change{
		Actor:  in.Actor,
		Action: lifecycle.ActionArchived,
		Note:   fmt.Sprintf("archive %s (%s)", a.ID, reason),
		At:     now,
	}
	if !doc.Status.IsTerminal() {
		change.To = models.DocumentStatusArchived
	}
	if err := lifecycle.Apply(ctx, tx, doc, change); err != nil {
		return nil, err
	}
	return a, nil
}

// ArchiveVersion snapshots one revision of a document. The document itself
// is left unchanged.
func (m *Manager) ArchiveVersion(ctx context.Context, in VersionInput) (*models.DocumentArchive, error) {
	const op = "archive.ArchiveVersion"

	reason, err := reasonOrDefault(op, in.Reason)
	if err != nil {
		return nil, err
	}

	var a *models.DocumentArchive
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rev models.DocumentRevision
		if err := tx.Where("id = ?", in.RevisionID).First(&rev).Error; err != nil {
			return docerr.FromDB(op, "document_revision", in.RevisionID, err)
		}
		doc, err := lifecycle.Load(ctx, tx, op, rev.DocumentID)
		if err != nil {
			return err
		}

		snapshot, err := json.Marshal(map[string]any{
			"document": doc,
			"revision": rev,
		})
		if err != nil {
			return fmt.Errorf("error marshaling revision snapshot: %w", err)
		}

		now := m.now().UTC()
		years := m.retention(in.RetentionYears)
		revID := rev.ID
		a = &models.DocumentArchive{
			DocumentID:      doc.ID,
			RevisionID:      &revID,
			CompanyID:       doc.CompanyID,
			ControlNumber:   doc.ControlNumber,
			TypeCode:        doc.TypeCode,
			Title:           doc.Title,
			Version:         rev.Version,
			StatusAtArchive: doc.Status,
			FileRef:         rev.FileRef,
			Snapshot:        models.JSON(snapshot),
			Reason:          reason,
			RetentionYears:  years,
			RetainUntil:     now.AddDate(years, 0, 0),
			DestructionHold: in.DestructionHold,
			ArchivedBy:      in.Actor,
			ArchivedAt:      now,
			Notes:           in.Notes,
		}
		return docerr.FromDB(op, "document_archive", doc.ID, tx.Create(a).Error)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("archived version",
		"archive_id", a.ID,
		"document_id", a.DocumentID,
		"version", a.Version,
	)
	return a, nil
}

// GetArchive loads an archive.
func (m *Manager) GetArchive(ctx context.Context, id string) (*models.DocumentArchive, error) {
	var a models.DocumentArchive
	if err := m.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, docerr.FromDB("archive.GetArchive", "document_archive", id, err)
	}
	return &a, nil
}

// ListArchives returns archives matching f, newest first.
func (m *Manager) ListArchives(ctx context.Context, f Filter) ([]models.DocumentArchive, error) {
	q := m.db.WithContext(ctx).Model(&models.DocumentArchive{})
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.DocumentID != "" {
		q = q.Where("document_id = ?", f.DocumentID)
	}
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}
	if f.VersionsOnly {
		q = q.Where("revision_id IS NOT NULL")
	}

	var archives []models.DocumentArchive
	if err := q.Order("archived_at DESC").Find(&archives).Error; err != nil {
		return nil, docerr.FromDB("archive.ListArchives", "document_archive", "", err)
	}
	return archives, nil
}

// EligibleForDestruction returns archives whose retention period has ended
// by asOf and that are not under a destruction hold.
func (m *Manager) EligibleForDestruction(ctx context.Context, companyID string, asOf time.Time) ([]models.DocumentArchive, error) {
	q := m.db.WithContext(ctx).
		Where("retain_until <= ? AND destruction_hold = ?", asOf.UTC(), false)
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}
	var archives []models.DocumentArchive
	if err := q.Order("retain_until ASC").Find(&archives).Error; err != nil {
		return nil, docerr.FromDB("archive.EligibleForDestruction", "document_archive", "", err)
	}
	return archives, nil
}

// ArchivedDocument is the decoded document part of a snapshot.
type ArchivedDocument struct {
	ID             string     `mapstructure:"id"`
	CompanyID      string     `mapstructure:"companyId"`
	ControlNumber  string     `mapstructure:"controlNumber"`
	TypeCode       string     `mapstructure:"typeCode"`
	Title          string     `mapstructure:"title"`
	Description    string     `mapstructure:"description"`
	Version        string     `mapstructure:"version"`
	Status         string     `mapstructure:"status"`
	FileRef        string     `mapstructure:"fileRef"`
	Tags           []string   `mapstructure:"tags"`
	AuditElements  []string   `mapstructure:"auditElements"`
	EffectiveDate  *time.Time `mapstructure:"effectiveDate"`
	NextReviewDate *time.Time `mapstructure:"nextReviewDate"`
	SupersedesID   string     `mapstructure:"supersedesId"`
	SupersededByID string     `mapstructure:"supersededById"`
}

// ArchivedRevision is the decoded revision part of a version snapshot.
type ArchivedRevision struct {
	ID              string `mapstructure:"id"`
	RevisionNumber  int    `mapstructure:"revisionNumber"`
	Version         string `mapstructure:"version"`
	PreviousVersion string `mapstructure:"previousVersion"`
	ChangeType      string `mapstructure:"changeType"`
	Summary         string `mapstructure:"summary"`
	Author          string `mapstructure:"author"`
	FileRef         string `mapstructure:"fileRef"`
}

// Snapshot is a decoded archive snapshot. Revision is nil for document
// archives.
type Snapshot struct {
	Document ArchivedDocument
	Revision *ArchivedRevision
}

// DecodeSnapshot decodes the JSON stored with an archive.
func DecodeSnapshot(a *models.DocumentArchive) (*Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(a.Snapshot, &raw); err != nil {
		return nil, fmt.Errorf("error parsing archive snapshot %s: %w", a.ID, err)
	}

	snap := &Snapshot{}
	docPart := raw
	if a.RevisionID != nil {
		docPart, _ = raw["document"].(map[string]any)
		revPart, _ := raw["revision"].(map[string]any)
		snap.Revision = &ArchivedRevision{}
		if err := decode(revPart, snap.Revision); err != nil {
			return nil, fmt.Errorf("error decoding revision snapshot %s: %w", a.ID, err)
		}
	}
	if err := decode(docPart, &snap.Document); err != nil {
		return nil, fmt.Errorf("error decoding document snapshot %s: %w", a.ID, err)
	}
	return snap, nil
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
