package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRetentionYears is the retention period for archives that do not
// specify one.
const DefaultRetentionYears = 7

// ErrArchiveImmutable is returned when an archive row is updated or deleted.
var ErrArchiveImmutable = errors.New("document archives are write-once")

// ArchiveReason records why a document or version was archived.
type ArchiveReason string

const (
	ArchiveReasonSuperseded       ArchiveReason = "superseded"
	ArchiveReasonObsolete         ArchiveReason = "obsolete"
	ArchiveReasonExpired          ArchiveReason = "expired"
	ArchiveReasonRegulatoryChange ArchiveReason = "regulatory_change"
	ArchiveReasonManual           ArchiveReason = "manual"
)

// Valid reports whether r is a known reason.
func (r ArchiveReason) Valid() bool {
	switch r {
	case ArchiveReasonSuperseded, ArchiveReasonObsolete, ArchiveReasonExpired,
		ArchiveReasonRegulatoryChange, ArchiveReasonManual:
		return true
	}
	return false
}

// DocumentArchive is an immutable, denormalized snapshot of a document or
// one of its versions kept for the retention period.
type DocumentArchive struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID      string         `gorm:"type:varchar(36);not null;index" json:"documentId"`
	RevisionID      *string        `gorm:"type:varchar(36)" json:"revisionId,omitempty"`
	CompanyID       string         `gorm:"type:varchar(64);not null;index" json:"companyId"`
	ControlNumber   string         `gorm:"type:varchar(64);not null" json:"controlNumber"`
	TypeCode        string         `gorm:"type:varchar(16);not null" json:"typeCode"`
	Title           string         `gorm:"type:varchar(500);not null" json:"title"`
	Version         string         `gorm:"type:varchar(20);not null" json:"version"`
	StatusAtArchive DocumentStatus `gorm:"type:varchar(32);not null" json:"statusAtArchive"`
	FileRef         string         `gorm:"type:varchar(1000)" json:"fileRef,omitempty"`

	// Snapshot is the full JSON rendering of the archived document or
	// revision.
	Snapshot JSON `gorm:"type:text;not null" json:"snapshot"`

	Reason          ArchiveReason `gorm:"type:varchar(32);not null" json:"reason"`
	RetentionYears  int           `gorm:"not null" json:"retentionYears"`
	RetainUntil     time.Time     `gorm:"not null;index" json:"retainUntil"`
	DestructionHold bool          `gorm:"not null;default:false" json:"destructionHold"`
	ArchivedBy      string        `gorm:"type:varchar(200)" json:"archivedBy"`
	ArchivedAt      time.Time     `gorm:"not null" json:"archivedAt"`
	Notes           string        `gorm:"type:text" json:"notes,omitempty"`
}

// TableName specifies the table name.
func (DocumentArchive) TableName() string {
	return "document_archives"
}

// BeforeCreate assigns an identifier and retention defaults.
func (a *DocumentArchive) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Reason == "" {
		a.Reason = ArchiveReasonManual
	}
	if a.RetentionYears <= 0 {
		a.RetentionYears = DefaultRetentionYears
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now().UTC()
	}
	if a.RetainUntil.IsZero() {
		a.RetainUntil = a.ArchivedAt.AddDate(a.RetentionYears, 0, 0)
	}
	return nil
}

// BeforeUpdate rejects every update.
func (a *DocumentArchive) BeforeUpdate(tx *gorm.DB) error {
	return ErrArchiveImmutable
}

// BeforeDelete rejects every delete.
func (a *DocumentArchive) BeforeDelete(tx *gorm.DB) error {
	return ErrArchiveImmutable
}
