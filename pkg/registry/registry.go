// Package registry is the entry point for controlled documents. It owns
// document creation and the lifecycle operations, and delegates numbering,
// approvals, revisions, archival and folder placement to their managers.
// Every mutating call runs in one store transaction.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/approval"
	"github.com/hashicorp-forge/doccontrol/pkg/archive"
	"github.com/hashicorp-forge/doccontrol/pkg/controlnumber"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/folder"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
	"github.com/hashicorp-forge/doccontrol/pkg/review"
	"github.com/hashicorp-forge/doccontrol/pkg/revision"
	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// Registry manages controlled documents.
type Registry struct {
	db        *gorm.DB
	allocator *controlnumber.Allocator
	approvals *approval.Engine
	revisions *revision.Manager
	archives  *archive.Manager
	folders   *folder.Organizer
	notifier  notifications.Notifier
	logger    hclog.Logger
	now       func() time.Time
}

// Option is a functional option for creating a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNotifier sets the notifier for approval requests and status changes.
func WithNotifier(n notifications.Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAllocator sets the control-number allocator.
func WithAllocator(a *controlnumber.Allocator) Option {
	return func(r *Registry) {
		if a != nil {
			r.allocator = a
		}
	}
}

// WithArchiveManager sets the archive manager used for superseded
// documents.
func WithArchiveManager(m *archive.Manager) Option {
	return func(r *Registry) {
		if m != nil {
			r.archives = m
		}
	}
}

// New creates a Registry. Managers not supplied through options are built
// with the registry's logger and notifier.
func New(db *gorm.DB, opts ...Option) *Registry {
	r := &Registry{
		db:       db,
		logger:   hclog.NewNullLogger(),
		notifier: notifications.NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.allocator == nil {
		r.allocator = controlnumber.New(controlnumber.WithLogger(r.logger))
	}
	if r.archives == nil {
		r.archives = archive.New(db, archive.WithLogger(r.logger), archive.WithClock(r.now))
	}
	r.approvals = approval.New(db, approval.WithLogger(r.logger), approval.WithNotifier(r.notifier))
	r.revisions = revision.New(db, revision.WithLogger(r.logger))
	r.folders = folder.New(db, folder.WithLogger(r.logger))
	r.logger = r.logger.Named("registry")
	return r
}

// Approvals returns the approval engine sharing the registry's store.
func (r *Registry) Approvals() *approval.Engine {
	return r.approvals
}

func (r *Registry) today() time.Time {
	return models.DateOnly(r.now())
}

// write runs fn in a transaction, retrying once on a lock conflict.
func (r *Registry) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return lifecycle.RetryConflicts(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(fn)
	})
}

// CreateDocument allocates a control number and stores a new draft at
// version 1.0. When the document type requires approval the pending
// workflow for its roles is created in the same transaction.
func (r *Registry) CreateDocument(ctx context.Context, in CreateInput) (*models.Document, error) {
	const op = "registry.CreateDocument"

	if err := in.Validate(); err != nil {
		return nil, docerr.Invalid(op, err)
	}
	typeCode := strings.ToUpper(strings.TrimSpace(in.TypeCode))
	fileType := strings.ToLower(in.FileType)
	if fileType == "" && in.FileRef != "" {
		fileType = storage.Ext(in.FileRef)
	}

	var doc *models.Document
	err := r.write(ctx, func(tx *gorm.DB) error {
		dt, err := models.GetDocumentType(tx, typeCode)
		if err != nil {
			return docerr.FromDB(op, "document_type", typeCode, err)
		}
		if err := checkFileType(op, dt, fileType); err != nil {
			return err
		}
		if in.FolderID != nil {
			if err := checkFolder(ctx, tx, op, in.CompanyID, *in.FolderID); err != nil {
				return err
			}
		}
		if in.SupersedesID != nil {
			old, err := lifecycle.Load(ctx, tx, op, *in.SupersedesID)
			if err != nil {
				return err
			}
			if old.CompanyID != in.CompanyID {
				return docerr.Precondition(op, "document", old.ID, "superseded document belongs to another company")
			}
		}

		alloc, err := r.allocator.Allocate(ctx, tx, in.CompanyID, dt)
		if err != nil {
			return err
		}

		folderID := in.FolderID
		if folderID == nil {
			f, err := r.folders.ForDocumentType(ctx, tx, in.CompanyID, dt.Code)
			if err != nil {
				return err
			}
			if f != nil {
				folderID = &f.ID
			}
		}

		now := r.now().UTC()
		reviewFrom := now
		if in.EffectiveDate != nil {
			reviewFrom = *in.EffectiveDate
		}
		next := review.NextReviewDate(reviewFrom, dt)
		doc = &models.Document{
			CompanyID:              in.CompanyID,
			ControlNumber:          alloc.ControlNumber,
			TypeCode:               dt.Code,
			SequenceNumber:         alloc.Sequence,
			Title:                  strings.TrimSpace(in.Title),
			Description:            in.Description,
			Version:                models.InitialVersion,
			Status:                 models.DocumentStatusDraft,
			FileRef:                in.FileRef,
			FileType:               fileType,
			Tags:                   models.StringArray{}.Union(in.Tags...),
			AuditElements:          models.StringArray{}.Union(in.AuditElements...),
			CrossReferences:        models.StringArray{},
			Applicability:          models.StringArray{}.Union(in.Applicability...),
			FolderID:               folderID,
			IsCritical:             in.IsCritical,
			RequiresAcknowledgment: in.RequiresAcknowledgment,
			EffectiveDate:          in.EffectiveDate,
			ExpiryDate:             in.ExpiryDate,
			NextReviewDate:         &next,
			SupersedesID:           in.SupersedesID,
			CreatedBy:              in.Actor,
			AuditTrail: models.AuditTrail{}.Append(models.AuditEntry{
				At:     now,
				Actor:  in.Actor,
				Action: lifecycle.ActionCreated,
				To:     models.DocumentStatusDraft,
				Note:   fmt.Sprintf("created %s", alloc.ControlNumber),
			}),
		}
		if in.FileRef != "" {
			doc.FileUpdatedAt = &now
		}
		if err := tx.Create(doc).Error; err != nil {
			return docerr.FromDB(op, "document", alloc.ControlNumber, err)
		}

		if dt.RequiresApproval {
			if _, err := r.approvals.CreateWorkflow(ctx, tx, doc, dt.ApproverRoles); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("created document",
		"document_id", doc.ID,
		"control_number", doc.ControlNumber,
		"company_id", doc.CompanyID,
	)
	return doc, nil
}

func checkFileType(op string, dt *models.DocumentType, fileType string) error {
	if fileType == "" || len(dt.FileTypes) == 0 {
		return nil
	}
	for _, ft := range dt.FileTypes {
		if strings.EqualFold(ft, fileType) {
			return nil
		}
	}
	return docerr.Invalid(op, fmt.Errorf("file type %q is not allowed for %s documents", fileType, dt.Code))
}

func checkFolder(ctx context.Context, tx *gorm.DB, op, companyID, folderID string) error {
	var f models.DocumentFolder
	if err := tx.WithContext(ctx).Where("id = ?", folderID).First(&f).Error; err != nil {
		return docerr.FromDB(op, "document_folder", folderID, err)
	}
	if f.CompanyID != companyID {
		return docerr.Precondition(op, "document_folder", folderID, "folder belongs to another company")
	}
	return nil
}

// GetDocument loads a document.
func (r *Registry) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return lifecycle.Load(ctx, r.db, "registry.GetDocument", id)
}

// GetDocumentByControlNumber loads a document by its company-scoped control
// number.
func (r *Registry) GetDocumentByControlNumber(ctx context.Context, companyID, controlNumber string) (*models.Document, error) {
	doc, err := models.GetDocumentByControlNumber(r.db.WithContext(ctx), companyID, strings.ToUpper(controlNumber))
	if err != nil {
		return nil, docerr.FromDB("registry.GetDocumentByControlNumber", "document", controlNumber, err)
	}
	return doc, nil
}

// UpdateDocument changes document metadata. Status, version and control
// number are never touched here.
func (r *Registry) UpdateDocument(ctx context.Context, id string, in UpdateInput) (*models.Document, error) {
	const op = "registry.UpdateDocument"

	if err := in.Validate(); err != nil {
		return nil, docerr.Invalid(op, err)
	}

	var doc *models.Document
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			return docerr.Precondition(op, "document", doc.ID, "document is %s", doc.Status)
		}
		if in.FolderID != nil && *in.FolderID != "" {
			if err := checkFolder(ctx, tx, op, doc.CompanyID, *in.FolderID); err != nil {
				return err
			}
		}

		fields := in.fields(r.now().UTC())
		if len(fields) == 0 {
			return nil
		}
		if ft, ok := fields["file_type"].(string); ok {
			dt, err := models.GetDocumentType(tx, doc.TypeCode)
			if err != nil {
				return docerr.FromDB(op, "document_type", doc.TypeCode, err)
			}
			if err := checkFileType(op, dt, ft); err != nil {
				return err
			}
		}
		return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
			Actor:  in.Actor,
			Action: lifecycle.ActionUpdated,
			Note:   "updated " + strings.Join(fieldNames(fields), ", "),
			Fields: fields,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SubmitForReview moves a draft or revised document to pending_review and
// opens the approval cycle for its current version when the type requires
// approval.
func (r *Registry) SubmitForReview(ctx context.Context, id, actor string) (*models.Document, error) {
	const op = "registry.SubmitForReview"

	var (
		doc    *models.Document
		cycle  []models.DocumentApproval
		notify bool
	)
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if doc.Status != models.DocumentStatusDraft && doc.Status != models.DocumentStatusUnderRevision {
			return docerr.Precondition(op, "document", doc.ID,
				"only draft or under_revision documents can be submitted, document is %s", doc.Status)
		}
		dt, err := models.GetDocumentType(tx, doc.TypeCode)
		if err != nil {
			return docerr.FromDB(op, "document_type", doc.TypeCode, err)
		}
		if err := lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
			To:    models.DocumentStatusPendingReview,
			Actor: actor,
			Note:  "submitted for review",
		}); err != nil {
			return err
		}
		if dt.RequiresApproval {
			cycle, err = r.approvals.RestartWorkflow(ctx, tx, doc, dt.ApproverRoles)
			notify = err == nil
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notify {
		pending := make([]models.DocumentApproval, 0, len(cycle))
		for _, a := range cycle {
			if a.Status == models.ApprovalStatusPending || a.Status == models.ApprovalStatusDelegated {
				pending = append(pending, a)
			}
		}
		notifications.Deliver(ctx, r.notifier, r.logger, approval.RequestMessages(doc, pending)...)
	}
	return doc, nil
}

// BeginReview moves a pending_review document to under_review.
func (r *Registry) BeginReview(ctx context.Context, id, actor string) (*models.Document, error) {
	const op = "registry.BeginReview"
	return r.transition(ctx, op, id, func(doc *models.Document) (*lifecycle.Change, error) {
		if doc.Status != models.DocumentStatusPendingReview {
			return nil, docerr.Precondition(op, "document", doc.ID,
				"review can only begin from pending_review, document is %s", doc.Status)
		}
		return &lifecycle.Change{To: models.DocumentStatusUnderReview, Actor: actor, Note: "review started"}, nil
	})
}

// ApproveDocument approves a document whose type has no approval
// workflow. Types that require approval are approved only through their
// approval cycle.
func (r *Registry) ApproveDocument(ctx context.Context, id, actor string) (*models.Document, error) {
	const op = "registry.ApproveDocument"

	var doc *models.Document
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, id)
		if err != nil {
			return err
		}
		dt, err := models.GetDocumentType(tx, doc.TypeCode)
		if err != nil {
			return docerr.FromDB(op, "document_type", doc.TypeCode, err)
		}
		if dt.RequiresApproval {
			return docerr.Precondition(op, "document", doc.ID,
				"%s documents are approved through the approval workflow", dt.Code)
		}
		return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
			To:     models.DocumentStatusApproved,
			Actor:  actor,
			Action: lifecycle.ActionApprovalDecision,
			Note:   "approved without workflow",
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ObsoleteDocument retires a document from any non-terminal state.
func (r *Registry) ObsoleteDocument(ctx context.Context, id, actor, reason string) (*models.Document, error) {
	const op = "registry.ObsoleteDocument"
	doc, err := r.transition(ctx, op, id, func(doc *models.Document) (*lifecycle.Change, error) {
		if doc.Status.IsTerminal() {
			return nil, docerr.Precondition(op, "document", doc.ID, "document is already %s", doc.Status)
		}
		return &lifecycle.Change{To: models.DocumentStatusObsolete, Actor: actor, Note: reason}, nil
	})
	if err != nil {
		return nil, err
	}
	r.notifyStatus(ctx, notifications.NotificationTypeDocumentObsoleted, doc, actor)
	return doc, nil
}

func (r *Registry) transition(ctx context.Context, op, id string, plan func(*models.Document) (*lifecycle.Change, error)) (*models.Document, error) {
	var doc *models.Document
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, id)
		if err != nil {
			return err
		}
		change, err := plan(doc)
		if err != nil {
			return err
		}
		return lifecycle.Apply(ctx, tx, doc, *change)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ActivateDocument makes an approved document effective today and
// schedules its next review. A document it supersedes becomes obsolete and
// is archived with reason superseded.
func (r *Registry) ActivateDocument(ctx context.Context, id, actor string) (*models.Document, error) {
	const op = "registry.ActivateDocument"

	var doc *models.Document
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		doc, err = lifecycle.Load(ctx, tx, op, id)
		if err != nil {
			return err
		}
		if doc.Status != models.DocumentStatusApproved {
			return docerr.Precondition(op, "document", doc.ID,
				"only approved documents can be activated, document is %s", doc.Status)
		}
		dt, err := models.GetDocumentType(tx, doc.TypeCode)
		if err != nil {
			return docerr.FromDB(op, "document_type", doc.TypeCode, err)
		}

		today := r.today()
		next := review.NextReviewDate(today, dt)
		if err := lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
			To:    models.DocumentStatusActive,
			Actor: actor,
			Note:  fmt.Sprintf("effective %s", today.Format("2006-01-02")),
			Fields: map[string]any{
				"effective_date":   today,
				"next_review_date": next,
			},
		}); err != nil {
			return err
		}

		if doc.SupersedesID != nil && *doc.SupersedesID != "" {
			return r.supersede(ctx, tx, doc, *doc.SupersedesID, actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("activated document",
		"document_id", doc.ID,
		"control_number", doc.ControlNumber,
		"version", doc.Version,
	)
	r.notifyStatus(ctx, notifications.NotificationTypeDocumentActivated, doc, actor)
	return doc, nil
}

func (r *Registry) supersede(ctx context.Context, tx *gorm.DB, doc *models.Document, oldID, actor string) error {
	const op = "registry.ActivateDocument"

	old, err := lifecycle.Load(ctx, tx, op, oldID)
	if err != nil {
		return err
	}
	if old.Status == models.DocumentStatusArchived {
		return nil
	}

	change := lifecycle.Change{
		Actor:  actor,
		Note:   fmt.Sprintf("superseded by %s", doc.ControlNumber),
		Fields: map[string]any{"superseded_by_id": doc.ID},
	}
	if !old.Status.IsTerminal() {
		change.To = models.DocumentStatusObsolete
	}
	if err := lifecycle.Apply(ctx, tx, old, change); err != nil {
		return err
	}

	_, err = r.archives.ArchiveDocumentTx(ctx, tx, archive.DocumentInput{
		DocumentID: old.ID,
		Reason:     models.ArchiveReasonSuperseded,
		Actor:      actor,
		Notes:      fmt.Sprintf("superseded by %s", doc.ControlNumber),
	})
	if err != nil {
		return err
	}

	r.logger.Info("superseded document",
		"document_id", old.ID,
		"control_number", old.ControlNumber,
		"superseded_by", doc.ControlNumber,
	)
	return nil
}

func (r *Registry) notifyStatus(ctx context.Context, t notifications.NotificationType, doc *models.Document, actor string) {
	msg := notifications.NewMessage(t, fmt.Sprintf("%s %s: %s", doc.ControlNumber, doc.Status, doc.Title),
		notifications.Recipient{ID: doc.CreatedBy}).
		ForDocument(doc.CompanyID, doc.ID, doc.ControlNumber, doc.Version)
	msg.UserID = actor
	notifications.Deliver(ctx, r.notifier, r.logger, msg)
}

// CreateRevision records a revision of a document.
func (r *Registry) CreateRevision(ctx context.Context, in revision.CreateInput) (*models.DocumentRevision, error) {
	var rev *models.DocumentRevision
	err := r.write(ctx, func(tx *gorm.DB) error {
		var err error
		rev, err = r.revisions.CreateRevisionTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// ListRevisions returns a document's revisions, newest first.
func (r *Registry) ListRevisions(ctx context.Context, documentID string) ([]models.DocumentRevision, error) {
	return r.revisions.ListRevisions(ctx, documentID)
}
