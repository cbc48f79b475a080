package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewType is why a review was scheduled.
type ReviewType string

const (
	ReviewTypeScheduled  ReviewType = "scheduled"
	ReviewTypeManual     ReviewType = "manual"
	ReviewTypeRegulatory ReviewType = "regulatory"
	ReviewTypeIncident   ReviewType = "incident"
)

// ReviewStatus is the progress of a periodic review.
type ReviewStatus string

const (
	ReviewStatusScheduled  ReviewStatus = "scheduled"
	ReviewStatusInProgress ReviewStatus = "in_progress"
	ReviewStatusCompleted  ReviewStatus = "completed"
	ReviewStatusOverdue    ReviewStatus = "overdue"
	ReviewStatusCancelled  ReviewStatus = "cancelled"
)

// ReviewOutcome is the reviewer's conclusion.
type ReviewOutcome string

const (
	ReviewOutcomeNoChange      ReviewOutcome = "no_change"
	ReviewOutcomeMinorUpdate   ReviewOutcome = "minor_update"
	ReviewOutcomeMajorRevision ReviewOutcome = "major_revision"
	ReviewOutcomeObsolete      ReviewOutcome = "obsolete"
	ReviewOutcomeExtendReview  ReviewOutcome = "extend_review"
)

// DocumentReview is a periodic (or ad hoc) review of a document.
type DocumentReview struct {
	ID             string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID     string        `gorm:"type:varchar(36);not null;index" json:"documentId"`
	ReviewType     ReviewType    `gorm:"type:varchar(20);not null;default:'scheduled'" json:"reviewType"`
	DueDate        time.Time     `gorm:"not null;index" json:"dueDate"`
	AssignedTo     string        `gorm:"type:varchar(200)" json:"assignedTo,omitempty"`
	Status         ReviewStatus  `gorm:"type:varchar(20);not null;default:'scheduled';index" json:"status"`
	Outcome        ReviewOutcome `gorm:"type:varchar(20)" json:"outcome,omitempty"`
	ReviewerNotes  string        `gorm:"type:text" json:"reviewerNotes,omitempty"`
	ActionItems    StringArray   `gorm:"type:text" json:"actionItems"`
	NextReviewDate *time.Time    `json:"nextReviewDate,omitempty"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	CompletedBy    string        `gorm:"type:varchar(200)" json:"completedBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocumentReview) TableName() string {
	return "document_reviews"
}

// BeforeCreate assigns an identifier and defaults.
func (r *DocumentReview) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReviewStatusScheduled
	}
	if r.ReviewType == "" {
		r.ReviewType = ReviewTypeScheduled
	}
	return nil
}

// IsOpen reports whether the review can still be worked on.
func (r *DocumentReview) IsOpen() bool {
	switch r.Status {
	case ReviewStatusScheduled, ReviewStatusInProgress, ReviewStatusOverdue:
		return true
	}
	return false
}
