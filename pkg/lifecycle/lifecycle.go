// Package lifecycle enforces the document state machine. Every status change
// goes through Apply, which validates the transition, appends to the audit
// trail and writes with an optimistic lock.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// Audit actions written by the engine.
const (
	ActionCreated          = "created"
	ActionStatusChanged    = "status_changed"
	ActionUpdated          = "updated"
	ActionRevised          = "revised"
	ActionApprovalDecision = "approval_decision"
	ActionReviewCompleted  = "review_completed"
	ActionArchived         = "archived"
	ActionAutoLinked       = "audit_elements_linked"
	ActionReindexed        = "reindexed"
)

var transitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocumentStatusDraft: {
		models.DocumentStatusPendingReview, models.DocumentStatusUnderReview, models.DocumentStatusApproved,
		models.DocumentStatusUnderRevision, models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
	models.DocumentStatusPendingReview: {
		models.DocumentStatusUnderReview, models.DocumentStatusApproved, models.DocumentStatusDraft,
		models.DocumentStatusUnderRevision, models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
	models.DocumentStatusUnderReview: {
		models.DocumentStatusApproved, models.DocumentStatusDraft,
		models.DocumentStatusUnderRevision, models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
	models.DocumentStatusApproved: {
		models.DocumentStatusActive, models.DocumentStatusDraft, models.DocumentStatusUnderRevision,
		models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
	models.DocumentStatusActive: {
		models.DocumentStatusUnderRevision, models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
	models.DocumentStatusUnderRevision: {
		models.DocumentStatusPendingReview, models.DocumentStatusUnderReview, models.DocumentStatusApproved,
		models.DocumentStatusDraft, models.DocumentStatusObsolete, models.DocumentStatusArchived,
	},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to models.DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the states reachable from s.
func AllowedTransitions(s models.DocumentStatus) []models.DocumentStatus {
	out := make([]models.DocumentStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// Change describes an audited write to a document.
type Change struct {
	// To is the target status. Empty leaves the status unchanged.
	To     models.DocumentStatus
	Actor  string
	Action string
	Note   string

	// Fields are extra columns written in the same statement.
	Fields map[string]any

	// At overrides the audit timestamp.
	At time.Time
}

// Apply validates and writes c to doc inside tx. The write is conditional on
// doc.LockVersion; if another writer got there first a retryable conflict
// is returned. On success doc is reloaded.
func Apply(ctx context.Context, tx *gorm.DB, doc *models.Document, c Change) error {
	const op = "lifecycle.Apply"

	if !doc.Status.Valid() {
		return docerr.Invalid(op, fmt.Errorf("document %s has unknown status %q", doc.ID, doc.Status))
	}
	if c.To != "" {
		if !c.To.Valid() {
			return docerr.Invalid(op, fmt.Errorf("unknown target status %q", c.To))
		}
		if !CanTransition(doc.Status, c.To) {
			return docerr.Precondition(op, "document", doc.ID,
				"transition %s -> %s is not allowed", doc.Status, c.To)
		}
	}

	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	action := c.Action
	if action == "" {
		action = ActionStatusChanged
		if c.To == "" {
			action = ActionUpdated
		}
	}
	entry := models.AuditEntry{
		At:     at,
		Actor:  c.Actor,
		Action: action,
		Note:   c.Note,
	}
	if c.To != "" {
		entry.From = doc.Status
		entry.To = c.To
	}

	updates := make(map[string]any, len(c.Fields)+4)
	for k, v := range c.Fields {
		updates[k] = v
	}
	if c.To != "" {
		updates["status"] = c.To
	}
	updates["audit_trail"] = doc.AuditTrail.Append(entry)
	updates["lock_version"] = gorm.Expr("lock_version + 1")
	updates["updated_at"] = at

	res := tx.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND lock_version = ?", doc.ID, doc.LockVersion).
		Updates(updates)
	if res.Error != nil {
		return docerr.FromDB(op, "document", doc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return docerr.Conflict(op, "document", doc.ID,
			fmt.Errorf("document changed concurrently (lock version %d)", doc.LockVersion))
	}

	return tx.WithContext(ctx).Where("id = ?", doc.ID).First(doc).Error
}

// Load reads a document inside tx, mapping a missing row to not_found.
func Load(ctx context.Context, tx *gorm.DB, op, id string) (*models.Document, error) {
	doc, err := models.GetDocument(tx.WithContext(ctx), id)
	if err != nil {
		return nil, docerr.FromDB(op, "document", id, err)
	}
	return doc, nil
}

// RetryConflicts runs fn and retries it once if it fails with a conflict.
// Other errors are returned immediately.
func RetryConflicts(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 1),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !docerr.IsConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
