package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalStatus is the decision state of a single approval step.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusDelegated ApprovalStatus = "delegated"
	ApprovalStatusSkipped   ApprovalStatus = "skipped"
)

// DocumentApproval is one approver role's step in a document's approval
// workflow. Each document version has its own set of approvals.
type DocumentApproval struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID      string         `gorm:"type:varchar(36);not null;index:idx_doc_approvals_cycle,priority:1" json:"documentId"`
	DocumentVersion string         `gorm:"type:varchar(20);not null;index:idx_doc_approvals_cycle,priority:2" json:"documentVersion"`
	Role            string         `gorm:"type:varchar(100);not null" json:"role"`
	ApproverID      string         `gorm:"type:varchar(200);index" json:"approverId,omitempty"`
	DelegatedFrom   string         `gorm:"type:varchar(200)" json:"delegatedFrom,omitempty"`
	OrderIndex      int            `gorm:"not null" json:"orderIndex"`
	Required        bool           `gorm:"not null" json:"required"`
	Status          ApprovalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	DecidedBy       string         `gorm:"type:varchar(200)" json:"decidedBy,omitempty"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
	Comments        string         `gorm:"type:text" json:"comments,omitempty"`
	Signature       string         `gorm:"type:text" json:"signature,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocumentApproval) TableName() string {
	return "document_approvals"
}

// BeforeCreate assigns an identifier and default status.
func (a *DocumentApproval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = ApprovalStatusPending
	}
	return nil
}

// GetApprovalsForCycle returns the approvals of one document version in
// workflow order.
func GetApprovalsForCycle(db *gorm.DB, documentID, version string) ([]DocumentApproval, error) {
	var approvals []DocumentApproval
	err := db.Where("document_id = ? AND document_version = ?", documentID, version).
		Order("order_index ASC").
		Find(&approvals).Error
	return approvals, err
}
