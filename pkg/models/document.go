package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentStatus is the lifecycle state of a controlled document.
type DocumentStatus string

const (
	DocumentStatusDraft         DocumentStatus = "draft"
	DocumentStatusPendingReview DocumentStatus = "pending_review"
	DocumentStatusUnderReview   DocumentStatus = "under_review"
	DocumentStatusApproved      DocumentStatus = "approved"
	DocumentStatusActive        DocumentStatus = "active"
	DocumentStatusUnderRevision DocumentStatus = "under_revision"
	DocumentStatusObsolete      DocumentStatus = "obsolete"
	DocumentStatusArchived      DocumentStatus = "archived"
)

// InitialVersion is the version of a newly created document.
const InitialVersion = "1.0"

var documentStatuses = map[DocumentStatus]bool{
	DocumentStatusDraft:         true,
	DocumentStatusPendingReview: true,
	DocumentStatusUnderReview:   true,
	DocumentStatusApproved:      true,
	DocumentStatusActive:        true,
	DocumentStatusUnderRevision: true,
	DocumentStatusObsolete:      true,
	DocumentStatusArchived:      true,
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	return documentStatuses[s]
}

// IsTerminal reports whether s has no outgoing transitions.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusObsolete || s == DocumentStatusArchived
}

// IsInForce reports whether a document in state s may be relied on.
func (s DocumentStatus) IsInForce() bool {
	return s == DocumentStatusActive || s == DocumentStatusApproved
}

// AuditEntry records one change to a document.
type AuditEntry struct {
	At     time.Time      `json:"at"`
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	From   DocumentStatus `json:"from,omitempty"`
	To     DocumentStatus `json:"to,omitempty"`
	Note   string         `json:"note,omitempty"`
}

// AuditTrail is the append-only change log stored with a document.
type AuditTrail []AuditEntry

// Append returns a new trail with e added. The receiver is never modified,
// so trails loaded from the store cannot be rewritten in place.
func (a AuditTrail) Append(e AuditEntry) AuditTrail {
	out := make(AuditTrail, len(a), len(a)+1)
	copy(out, a)
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return append(out, e)
}

// Scan implements the sql.Scanner interface.
func (a *AuditTrail) Scan(value interface{}) error {
	if value == nil {
		*a = AuditTrail{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to unmarshal audit trail: %w", err)
	}
	if len(bytes) == 0 {
		*a = AuditTrail{}
		return nil
	}
	var entries []AuditEntry
	if err := json.Unmarshal(bytes, &entries); err != nil {
		return err
	}
	*a = AuditTrail(entries)
	return nil
}

// Value implements the driver.Valuer interface.
func (a AuditTrail) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]AuditEntry(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Document is a controlled document. Documents are retired through status
// transitions and are never deleted.
type Document struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CompanyID      string `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_documents_company_control,priority:1" json:"companyId"`
	ControlNumber  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_documents_company_control,priority:2" json:"controlNumber"`
	TypeCode       string `gorm:"type:varchar(16);not null;index" json:"typeCode"`
	SequenceNumber int64  `gorm:"not null" json:"sequenceNumber"`

	Title       string         `gorm:"type:varchar(500);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Version     string         `gorm:"type:varchar(20);not null;default:'1.0'" json:"version"`
	Status      DocumentStatus `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`

	// File and extracted content
	FileRef         string     `gorm:"type:varchar(1000)" json:"fileRef,omitempty"`
	FileType        string     `gorm:"type:varchar(20)" json:"fileType,omitempty"`
	FileUpdatedAt   *time.Time `json:"fileUpdatedAt,omitempty"`
	ExtractedText   string     `gorm:"type:text" json:"-"`
	PageCount       int        `json:"pageCount,omitempty"`
	TextExtractedAt *time.Time `json:"textExtractedAt,omitempty"`
	ContentHash     string     `gorm:"type:varchar(64)" json:"contentHash,omitempty"`

	// Classification
	Tags            StringArray `gorm:"type:text" json:"tags"`
	AuditElements   StringArray `gorm:"type:text" json:"auditElements"`
	CrossReferences StringArray `gorm:"type:text" json:"crossReferences"`
	Applicability   StringArray `gorm:"type:text" json:"applicability"`
	FolderID        *string     `gorm:"type:varchar(36);index" json:"folderId,omitempty"`

	IsCritical             bool `gorm:"not null;default:false" json:"isCritical"`
	RequiresAcknowledgment bool `gorm:"not null;default:false" json:"requiresAcknowledgment"`

	EffectiveDate  *time.Time `json:"effectiveDate,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
	NextReviewDate *time.Time `gorm:"index" json:"nextReviewDate,omitempty"`

	// Supersession links by identifier only
	SupersedesID   *string `gorm:"type:varchar(36)" json:"supersedesId,omitempty"`
	SupersededByID *string `gorm:"type:varchar(36)" json:"supersededById,omitempty"`

	AuditTrail  AuditTrail `gorm:"type:text" json:"auditTrail"`
	LockVersion int64      `gorm:"not null;default:0" json:"lockVersion"`

	CreatedBy string    `gorm:"type:varchar(200)" json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns an identifier and defaults.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Version == "" {
		d.Version = InitialVersion
	}
	if d.Status == "" {
		d.Status = DocumentStatusDraft
	}
	return nil
}

// BeforeSave rejects unknown statuses.
func (d *Document) BeforeSave(tx *gorm.DB) error {
	if d.Status != "" && !d.Status.Valid() {
		return fmt.Errorf("invalid document status %q", d.Status)
	}
	return nil
}

// GetDocument loads a document by ID.
func GetDocument(db *gorm.DB, id string) (*Document, error) {
	var doc Document
	if err := db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentByControlNumber loads a document by its company-scoped control
// number.
func GetDocumentByControlNumber(db *gorm.DB, companyID, controlNumber string) (*Document, error) {
	var doc Document
	err := db.Where("company_id = ? AND control_number = ?", companyID, controlNumber).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReviewOverdueDays returns how many days past its next review date the
// document is at asOf, or 0 if it is not overdue.
func (d *Document) ReviewOverdueDays(asOf time.Time) int {
	if d.NextReviewDate == nil {
		return 0
	}
	days := DaysBetween(*d.NextReviewDate, asOf)
	if days < 0 {
		return 0
	}
	return days
}
