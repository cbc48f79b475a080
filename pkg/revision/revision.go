// Package revision computes document versions and records revisions.
package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// NextVersion returns the version that follows current for the given change
// type. Versions are "major.minor" with non-negative integer parts.
func NextVersion(current string, changeType models.ChangeType) (string, error) {
	const op = "revision.NextVersion"

	if changeType == models.ChangeTypeInitial {
		return models.InitialVersion, nil
	}

	major, minor, err := ParseVersion(current)
	if err != nil {
		return "", docerr.Invalid(op, err)
	}

	switch changeType {
	case models.ChangeTypeMinorEdit:
		minor++
	case models.ChangeTypeMajorRevision, models.ChangeTypeCompleteRewrite:
		major++
		minor = 0
	default:
		return "", docerr.Invalid(op, fmt.Errorf("unknown change type %q", changeType))
	}
	return fmt.Sprintf("%d.%d", major, minor), nil
}

// ParseVersion splits a "major.minor" version string.
func ParseVersion(v string) (major, minor int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0, 0, fmt.Errorf("malformed major version in %q", v)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return 0, 0, fmt.Errorf("malformed minor version in %q", v)
	}
	return major, minor, nil
}

// CreateInput describes a new revision.
type CreateInput struct {
	DocumentID string
	ChangeType models.ChangeType
	Summary    string
	Details    string

	// FileRef replaces the document's file when set.
	FileRef string
	Actor   string
}

// Manager records revisions.
type Manager struct {
	db     *gorm.DB
	logger hclog.Logger
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

// New creates a revision manager.
func New(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("revision")
	return m
}

// CreateRevision records a revision and moves the document to
// under_revision in one transaction.
func (m *Manager) CreateRevision(ctx context.Context, in CreateInput) (*models.DocumentRevision, error) {
	var rev *models.DocumentRevision
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rev, err = m.CreateRevisionTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("created revision",
		"document_id", rev.DocumentID,
		"revision", rev.RevisionNumber,
		"version", rev.Version,
		"change_type", rev.ChangeType,
	)
	return rev, nil
}

// CreateRevisionTx is CreateRevision inside the caller's transaction.
func (m *Manager) CreateRevisionTx(ctx context.Context, tx *gorm.DB, in CreateInput) (*models.DocumentRevision, error) {
	const op = "revision.CreateRevision"

	if in.DocumentID == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("document id is required"))
	}

	doc, err := lifecycle.Load(ctx, tx, op, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() {
		return nil, docerr.Precondition(op, "document", doc.ID,
			"cannot revise a document in status %s", doc.Status)
	}

	version, err := NextVersion(doc.Version, in.ChangeType)
	if err != nil {
		return nil, err
	}

	latest, err := models.LatestRevisionNumber(tx.WithContext(ctx), doc.ID)
	if err != nil {
		return nil, docerr.FromDB(op, "document_revision", doc.ID, err)
	}

	snapshot, err := json.Marshal(models.RevisionSnapshot{
		Title:       doc.Title,
		Description: doc.Description,
		Status:      doc.Status,
		Tags:        doc.Tags,
		FileRef:     doc.FileRef,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling revision snapshot: %w", err)
	}

	fileRef := doc.FileRef
	if in.FileRef != "" {
		fileRef = in.FileRef
	}

	rev := &models.DocumentRevision{
		DocumentID:       doc.ID,
		RevisionNumber:   latest + 1,
		Version:          version,
		PreviousVersion:  doc.Version,
		ChangeType:       in.ChangeType,
		Summary:          in.Summary,
		Details:          in.Details,
		FileRef:          fileRef,
		Author:           in.Actor,
		MetadataSnapshot: models.JSON(snapshot),
	}
	if err := tx.WithContext(ctx).Create(rev).Error; err != nil {
		return nil, docerr.FromDB(op, "document_revision", doc.ID, err)
	}

	change := lifecycle.Change{
		Actor:  in.Actor,
		Action: lifecycle.ActionRevised,
		Note:   fmt.Sprintf("%s -> %s (%s): %s", doc.Version, version, in.ChangeType, in.Summary),
		Fields: map[string]any{"version": version},
	}
	if doc.Status != models.DocumentStatusUnderRevision {
		change.To = models.DocumentStatusUnderRevision
	}
	if in.FileRef != "" {
		change.Fields["file_ref"] = in.FileRef
	}
	if err := lifecycle.Apply(ctx, tx, doc, change); err != nil {
		return nil, err
	}

	return rev, nil
}

// ListRevisions returns a document's revisions, newest first.
func (m *Manager) ListRevisions(ctx context.Context, documentID string) ([]models.DocumentRevision, error) {
	revs, err := models.GetRevisionsByDocument(m.db.WithContext(ctx), documentID)
	if err != nil {
		return nil, docerr.FromDB("revision.ListRevisions", "document", documentID, err)
	}
	return revs, nil
}

// GetRevision loads a single revision.
func (m *Manager) GetRevision(ctx context.Context, id string) (*models.DocumentRevision, error) {
	var rev models.DocumentRevision
	if err := m.db.WithContext(ctx).Where("id = ?", id).First(&rev).Error; err != nil {
		return nil, docerr.FromDB("revision.GetRevision", "document_revision", id, err)
	}
	return &rev, nil
}
