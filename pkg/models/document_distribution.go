package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuizPassScore is the minimum quiz score that counts as a pass.
const QuizPassScore = 80

// DistributionMethod is how a document reached a recipient.
type DistributionMethod string

const (
	DistributionMethodEmail       DistributionMethod = "email"
	DistributionMethodPrint       DistributionMethod = "print"
	DistributionMethodPortal      DistributionMethod = "portal"
	DistributionMethodMeeting     DistributionMethod = "meeting"
	DistributionMethodToolboxTalk DistributionMethod = "toolbox_talk"
)

// DocumentDistribution records delivery of a document version to one
// recipient and that recipient's acknowledgment.
type DocumentDistribution struct {
	ID              string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DocumentID      string             `gorm:"type:varchar(36);not null;index" json:"documentId"`
	DocumentVersion string             `gorm:"type:varchar(20);not null" json:"documentVersion"`
	RecipientID     string             `gorm:"type:varchar(200);not null;index" json:"recipientId"`
	RecipientName   string             `gorm:"type:varchar(200)" json:"recipientName,omitempty"`
	RecipientEmail  string             `gorm:"type:varchar(320)" json:"recipientEmail,omitempty"`
	Method          DistributionMethod `gorm:"type:varchar(20);not null" json:"method"`
	RequiresQuiz    bool               `gorm:"not null;default:false" json:"requiresQuiz"`
	DistributedBy   string             `gorm:"type:varchar(200)" json:"distributedBy"`
	DistributedAt   time.Time          `gorm:"not null" json:"distributedAt"`

	Acknowledged         bool       `gorm:"not null;default:false;index" json:"acknowledged"`
	AcknowledgedAt       *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgmentMethod string     `gorm:"type:varchar(50)" json:"acknowledgmentMethod,omitempty"`
	Signature            string     `gorm:"type:text" json:"signature,omitempty"`
	QuizScore            *int       `json:"quizScore,omitempty"`
	QuizPassed           *bool      `json:"quizPassed,omitempty"`

	ReminderCount  int        `gorm:"not null;default:0" json:"reminderCount"`
	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (DocumentDistribution) TableName() string {
	return "document_distributions"
}

// BeforeCreate assigns an identifier.
func (d *DocumentDistribution) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DistributedAt.IsZero() {
		d.DistributedAt = time.Now().UTC()
	}
	return nil
}
