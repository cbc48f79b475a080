package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultAcknowledgmentDueDays is the deadline used when none is configured.
const DefaultAcknowledgmentDueDays = 14

// AcknowledgmentStatus is the state of a worker's acknowledgment requirement.
type AcknowledgmentStatus string

const (
	AcknowledgmentStatusPending      AcknowledgmentStatus = "pending"
	AcknowledgmentStatusAcknowledged AcknowledgmentStatus = "acknowledged"
	AcknowledgmentStatusOverdue      AcknowledgmentStatus = "overdue"
	AcknowledgmentStatusExempt       AcknowledgmentStatus = "exempt"
)

// DocumentAcknowledgment tracks that a worker must read and sign off on a
// document version by a deadline.
type DocumentAcknowledgment struct {
	ID              string               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID      string               `gorm:"type:varchar(36);not null;uniqueIndex:idx_doc_acks_worker,priority:1" json:"documentId"`
	DocumentVersion string               `gorm:"type:varchar(20);not null;uniqueIndex:idx_doc_acks_worker,priority:2" json:"documentVersion"`
	WorkerID        string               `gorm:"type:varchar(200);not null;uniqueIndex:idx_doc_acks_worker,priority:3" json:"workerId"`
	Status          AcknowledgmentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RequiredBy      *time.Time           `gorm:"index" json:"requiredBy,omitempty"`
	AcknowledgedAt  *time.Time           `json:"acknowledgedAt,omitempty"`
	Method          string               `gorm:"type:varchar(50)" json:"method,omitempty"`
	Signature       string               `gorm:"type:text" json:"signature,omitempty"`
	ExemptReason    string               `gorm:"type:varchar(500)" json:"exemptReason,omitempty"`
	ReminderCount   int                  `gorm:"not null;default:0" json:"reminderCount"`
	LastReminderAt  *time.Time           `json:"lastReminderAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocumentAcknowledgment) TableName() string {
	return "document_acknowledgments"
}

// BeforeCreate assigns an identifier and default status.
func (a *DocumentAcknowledgment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AcknowledgmentStatusPending
	}
	return nil
}
