package notifications

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeApprovalRequested      NotificationType = "approval_requested"
	NotificationTypeDocumentApproved       NotificationType = "document_approved"
	NotificationTypeDocumentRejected       NotificationType = "document_rejected"
	NotificationTypeDocumentActivated      NotificationType = "document_activated"
	NotificationTypeDocumentObsoleted      NotificationType = "document_obsoleted"
	NotificationTypeDocumentDistributed    NotificationType = "document_distributed"
	NotificationTypeDistributionReminder   NotificationType = "distribution_reminder"
	NotificationTypeAcknowledgmentRequired NotificationType = "acknowledgment_required"
	NotificationTypeAcknowledgmentReminder NotificationType = "acknowledgment_reminder"
	NotificationTypeReviewAssigned         NotificationType = "review_assigned"
	NotificationTypeReviewOverdue          NotificationType = "review_overdue"
)

// Priorities.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
	PriorityUrgent = 2
)

// NotificationMessage is the envelope for all notifications
type NotificationMessage struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Priority  int              `json:"priority"` // 0=normal, 1=high, 2=urgent

	// Context
	UserID        string `json:"user_id,omitempty"` // Triggering user
	CompanyID     string `json:"company_id,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
	ControlNumber string `json:"control_number,omitempty"`
	Version       string `json:"version,omitempty"`

	Recipients []Recipient `json:"recipients"`

	Subject string         `json:"subject"`
	Body    string         `json:"body,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Recipient defines a notification recipient. Role is used when the
// recipient is addressed by approver role rather than by person.
type Recipient struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// NewMessage builds a message with a fresh ID and timestamp.
func NewMessage(notifType NotificationType, subject string, recipients ...Recipient) *NotificationMessage {
	return &NotificationMessage{
		ID:         uuid.New().String(),
		Type:       notifType,
		Timestamp:  time.Now().UTC(),
		Recipients: recipients,
		Subject:    subject,
	}
}

// ForDocument sets the document context on the message.
func (m *NotificationMessage) ForDocument(companyID, documentID, controlNumber, version string) *NotificationMessage {
	m.CompanyID = companyID
	m.DocumentID = documentID
	m.ControlNumber = controlNumber
	m.Version = version
	return m
}
