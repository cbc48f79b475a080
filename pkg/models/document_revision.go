package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChangeType classifies a revision.
type ChangeType string

const (
	ChangeTypeInitial         ChangeType = "initial"
	ChangeTypeMinorEdit       ChangeType = "minor_edit"
	ChangeTypeMajorRevision   ChangeType = "major_revision"
	ChangeTypeCompleteRewrite ChangeType = "complete_rewrite"
)

// RevisionSnapshot captures document metadata at the time of a revision.
type RevisionSnapshot struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      DocumentStatus `json:"status"`
	Tags        []string       `json:"tags,omitempty"`
	FileRef     string         `json:"fileRef,omitempty"`
}

// DocumentRevision is an append-only record of a document version.
type DocumentRevision struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID      string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_doc_revisions_number,priority:1" json:"documentId"`
	RevisionNumber  int        `gorm:"not null;uniqueIndex:idx_doc_revisions_number,priority:2" json:"revisionNumber"`
	Version         string     `gorm:"type:varchar(20);not null" json:"version"`
	PreviousVersion string     `gorm:"type:varchar(20)" json:"previousVersion"`
	ChangeType      ChangeType `gorm:"type:varchar(32);not null" json:"changeType"`
	Summary         string     `gorm:"type:varchar(1000)" json:"summary"`
	Details         string     `gorm:"type:text" json:"details,omitempty"`
	FileRef         string     `gorm:"type:varchar(1000)" json:"fileRef,omitempty"`
	Author          string     `gorm:"type:varchar(200)" json:"author"`

	// MetadataSnapshot holds a RevisionSnapshot taken before the change.
	MetadataSnapshot JSON `gorm:"type:text" json:"metadataSnapshot"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name.
func (DocumentRevision) TableName() string {
	return "document_revisions"
}

// BeforeCreate assigns an identifier.
func (dr *DocumentRevision) BeforeCreate(tx *gorm.DB) error {
	if dr.ID == "" {
		dr.ID = uuid.NewString()
	}
	return nil
}

// GetRevisionsByDocument returns a document's revisions, newest first.
func GetRevisionsByDocument(db *gorm.DB, documentID string) ([]DocumentRevision, error) {
	var revisions []DocumentRevision
	err := db.Where("document_id = ?", documentID).
		Order("revision_number DESC").
		Find(&revisions).Error
	return revisions, err
}

// LatestRevisionNumber returns the highest revision number for a document,
// or 0 when it has none.
func LatestRevisionNumber(db *gorm.DB, documentID string) (int, error) {
	var max int64
	err := db.Model(&DocumentRevision{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&max).Error
	return int(max), err
}
