// Package approval runs the multi-role approval workflow that gates a
// document's move to approved.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

// Decision is an approver's response.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionDelegated Decision = "delegated"
	DecisionSkipped   Decision = "skipped"
)

// Outcome is the aggregate state of an approval cycle.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// SubmitInput is one approver's submission.
type SubmitInput struct {
	ApprovalID string
	Decision   Decision
	Actor      string
	Comments   string
	Signature  string

	// DelegateTo is the new approver for DecisionDelegated.
	DelegateTo string
}

// Result reports the approval after a submission and any resulting
// document transition.
type Result struct {
	Approval *models.DocumentApproval
	Outcome  Outcome

	// Document is the document after evaluation.
	Document *models.Document

	// Transitioned is true when the submission changed the document status.
	Transitioned bool
}

// Engine orchestrates approvals.
type Engine struct {
	db       *gorm.DB
	logger   hclog.Logger
	notifier notifications.Notifier
}

// Option is a functional option for creating an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNotifier sets the notifier used for approval requests and outcomes.
func WithNotifier(n notifications.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// New creates an approval engine.
func New(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		logger:   hclog.NewNullLogger(),
		notifier: notifications.NopNotifier{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("approval")
	return e
}

// ParseRole splits an approver role into its name and whether it is
// required. Roles prefixed with "optional:" are not required.
func ParseRole(role string) (name string, required bool) {
	if strings.HasPrefix(role, models.OptionalRolePrefix) {
		return strings.TrimPrefix(role, models.OptionalRolePrefix), false
	}
	return role, true
}

// CreateWorkflow creates one pending approval per role for the document's
// current version. An existing cycle for that version is returned unchanged.
func (e *Engine) CreateWorkflow(ctx context.Context, tx *gorm.DB, doc *models.Document, roles []string) ([]models.DocumentApproval, error) {
	const op = "approval.CreateWorkflow"

	existing, err := models.GetApprovalsForCycle(tx.WithContext(ctx), doc.ID, doc.Version)
	if err != nil {
		return nil, docerr.FromDB(op, "document", doc.ID, err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	approvals := make([]models.DocumentApproval, 0, len(roles))
	for i, role := range roles {
		name, required := ParseRole(strings.TrimSpace(role))
		if name == "" {
			continue
		}
		approvals = append(approvals, models.DocumentApproval{
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			Role:            name,
			OrderIndex:      i,
			Required:        required,
			Status:          models.ApprovalStatusPending,
		})
	}
	if len(approvals) == 0 {
		return nil, nil
	}
	if err := tx.WithContext(ctx).Create(&approvals).Error; err != nil {
		return nil, docerr.FromDB(op, "document_approval", doc.ID, err)
	}

	e.logger.Debug("created approval workflow",
		"document_id", doc.ID,
		"version", doc.Version,
		"steps", len(approvals),
	)
	return approvals, nil
}

// RestartWorkflow opens the approval cycle for a resubmitted document. A
// cycle that ended in rejection is reset to pending so every role decides
// again; otherwise it behaves like CreateWorkflow.
func (e *Engine) RestartWorkflow(ctx context.Context, tx *gorm.DB, doc *models.Document, roles []string) ([]models.DocumentApproval, error) {
	const op = "approval.RestartWorkflow"

	existing, err := models.GetApprovalsForCycle(tx.WithContext(ctx), doc.ID, doc.Version)
	if err != nil {
		return nil, docerr.FromDB(op, "document", doc.ID, err)
	}
	if len(existing) == 0 || Evaluate(existing) != OutcomeRejected {
		return e.CreateWorkflow(ctx, tx, doc, roles)
	}

	err = tx.WithContext(ctx).
		Model(&models.DocumentApproval{}).
		Where("document_id = ? AND document_version = ?", doc.ID, doc.Version).
		Updates(map[string]any{
			"status":     models.ApprovalStatusPending,
			"decided_by": "",
			"decided_at": nil,
			"signature":  "",
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, docerr.FromDB(op, "document_approval", doc.ID, err)
	}

	e.logger.Debug("restarted rejected approval cycle",
		"document_id", doc.ID,
		"version", doc.Version,
	)
	cycle, err := models.GetApprovalsForCycle(tx.WithContext(ctx), doc.ID, doc.Version)
	if err != nil {
		return nil, docerr.FromDB(op, "document", doc.ID, err)
	}
	return cycle, nil
}

// RequestMessages builds approval-request notifications for a cycle.
func RequestMessages(doc *models.Document, approvals []models.DocumentApproval) []*notifications.NotificationMessage {
	msgs := make([]*notifications.NotificationMessage, 0, len(approvals))
	for _, a := range approvals {
		r := notifications.Recipient{ID: a.ApproverID, Role: a.Role}
		msg := notifications.NewMessage(notifications.NotificationTypeApprovalRequested,
			fmt.Sprintf("Approval requested: %s %s", doc.ControlNumber, doc.Title), r).
			ForDocument(doc.CompanyID, doc.ID, doc.ControlNumber, doc.Version)
		msg.Context = map[string]any{"role": a.Role, "required": a.Required}
		msgs = append(msgs, msg)
	}
	return msgs
}

// SubmitApproval records a decision and re-evaluates the cycle.
func (e *Engine) SubmitApproval(ctx context.Context, in SubmitInput) (*Result, error) {
	var res *Result
	err := lifecycle.RetryConflicts(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = e.submit(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("approval submitted",
		"approval_id", res.Approval.ID,
		"document_id", res.Approval.DocumentID,
		"role", res.Approval.Role,
		"decision", in.Decision,
		"outcome", res.Outcome,
	)
	if res.Transitioned {
		notifications.Deliver(ctx, e.notifier, e.logger, outcomeMessage(res))
	}
	return res, nil
}

func (e *Engine) submit(ctx context.Context, tx *gorm.DB, in SubmitInput) (*Result, error) {
	const op = "approval.SubmitApproval"

	if in.ApprovalID == "" || in.Actor == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("approval id and actor are required"))
	}

	var a models.DocumentApproval
	if err := tx.WithContext(ctx).Where("id = ?", in.ApprovalID).First(&a).Error; err != nil {
		return nil, docerr.FromDB(op, "document_approval", in.ApprovalID, err)
	}

	doc, err := lifecycle.Load(ctx, tx, op, a.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsTerminal() {
		return nil, docerr.Precondition(op, "document", doc.ID,
			"document is %s", doc.Status)
	}
	if a.DocumentVersion != doc.Version {
		return nil, docerr.Precondition(op, "document_approval", a.ID,
			"approval belongs to version %s, document is at %s", a.DocumentVersion, doc.Version)
	}

	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	switch in.Decision {
	case DecisionApproved, DecisionRejected:
		status := models.ApprovalStatusApproved
		if in.Decision == DecisionRejected {
			status = models.ApprovalStatusRejected
		}
		updates["status"] = status
		updates["decided_by"] = in.Actor
		updates["decided_at"] = now
		updates["comments"] = in.Comments
		updates["signature"] = in.Signature
	case DecisionDelegated:
		if in.DelegateTo == "" {
			return nil, docerr.Invalid(op, fmt.Errorf("delegation requires a delegate"))
		}
		from := a.ApproverID
		if from == "" {
			from = in.Actor
		}
		updates["status"] = models.ApprovalStatusDelegated
		updates["approver_id"] = in.DelegateTo
		updates["delegated_from"] = from
		updates["comments"] = in.Comments
	case DecisionSkipped:
		if a.Required {
			return nil, docerr.Precondition(op, "document_approval", a.ID,
				"required approval for role %s cannot be skipped", a.Role)
		}
		updates["status"] = models.ApprovalStatusSkipped
		updates["decided_by"] = in.Actor
		updates["decided_at"] = now
		updates["comments"] = in.Comments
	default:
		return nil, docerr.Invalid(op, fmt.Errorf("unknown decision %q", in.Decision))
	}

	if err := tx.WithContext(ctx).Model(&a).Updates(updates).Error; err != nil {
		return nil, docerr.FromDB(op, "document_approval", a.ID, err)
	}
	if err := tx.WithContext(ctx).Where("id = ?", a.ID).First(&a).Error; err != nil {
		return nil, docerr.FromDB(op, "document_approval", a.ID, err)
	}

	// Re-read the whole cycle inside this transaction.
	cycle, err := models.GetApprovalsForCycle(tx.WithContext(ctx), doc.ID, doc.Version)
	if err != nil {
		return nil, docerr.FromDB(op, "document", doc.ID, err)
	}
	outcome := Evaluate(cycle)

	res := &Result{Approval: &a, Outcome: outcome, Document: doc}

	var target models.DocumentStatus
	switch outcome {
	case OutcomeApproved:
		target = models.DocumentStatusApproved
	case OutcomeRejected:
		target = models.DocumentStatusDraft
	}
	if target == "" || target == doc.Status {
		return res, nil
	}
	if !lifecycle.CanTransition(doc.Status, target) {
		e.logger.Debug("approval outcome does not apply to document status",
			"document_id", doc.ID,
			"status", doc.Status,
			"outcome", outcome,
		)
		return res, nil
	}

	note := fmt.Sprintf("%s by %s (%s)", outcome, in.Actor, a.Role)
	if err := lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
		To:     target,
		Actor:  in.Actor,
		Action: lifecycle.ActionApprovalDecision,
		Note:   note,
	}); err != nil {
		return nil, err
	}
	res.Transitioned = true
	return res, nil
}

// Evaluate computes a cycle's outcome from its required approvals. Any
// required rejection rejects the cycle; it is approved once every required
// approval is approved. A cycle without required approvals is approved when
// every approval is decided and at least one approved.
func Evaluate(cycle []models.DocumentApproval) Outcome {
	required := 0
	approved := 0
	for _, a := range cycle {
		if !a.Required {
			continue
		}
		required++
		switch a.Status {
		case models.ApprovalStatusRejected:
			return OutcomeRejected
		case models.ApprovalStatusApproved:
			approved++
		}
	}
	if required > 0 {
		if approved == required {
			return OutcomeApproved
		}
		return OutcomePending
	}

	if len(cycle) == 0 {
		return OutcomePending
	}
	anyApproved := false
	for _, a := range cycle {
		switch a.Status {
		case models.ApprovalStatusApproved:
			anyApproved = true
		case models.ApprovalStatusSkipped, models.ApprovalStatusRejected:
		default:
			return OutcomePending
		}
	}
	if anyApproved {
		return OutcomeApproved
	}
	return OutcomePending
}

func outcomeMessage(res *Result) *notifications.NotificationMessage {
	t := notifications.NotificationTypeDocumentApproved
	if res.Outcome == OutcomeRejected {
		t = notifications.NotificationTypeDocumentRejected
	}
	doc := res.Document
	msg := notifications.NewMessage(t, fmt.Sprintf("%s %s: %s", doc.ControlNumber, res.Outcome, doc.Title),
		notifications.Recipient{ID: doc.CreatedBy}).
		ForDocument(doc.CompanyID, doc.ID, doc.ControlNumber, doc.Version)
	msg.UserID = res.Approval.DecidedBy
	return msg
}

// ListApprovals returns every approval for a document, newest cycle last.
func (e *Engine) ListApprovals(ctx context.Context, documentID string) ([]models.DocumentApproval, error) {
	var approvals []models.DocumentApproval
	err := e.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, order_index ASC").
		Find(&approvals).Error
	if err != nil {
		return nil, docerr.FromDB("approval.ListApprovals", "document", documentID, err)
	}
	return approvals, nil
}

// CurrentCycle returns the approvals for the document's current version.
func (e *Engine) CurrentCycle(ctx context.Context, documentID string) ([]models.DocumentApproval, error) {
	const op = "approval.CurrentCycle"
	doc, err := lifecycle.Load(ctx, e.db, op, documentID)
	if err != nil {
		return nil, err
	}
	cycle, err := models.GetApprovalsForCycle(e.db.WithContext(ctx), doc.ID, doc.Version)
	if err != nil {
		return nil, docerr.FromDB(op, "document", doc.ID, err)
	}
	return cycle, nil
}

// PendingForApprover lists approvals awaiting a decision from approverID,
// or from anyone holding one of roles when the approval is unassigned.
// Approvals of documents that have moved past their cycle are excluded.
func (e *Engine) PendingForApprover(ctx context.Context, approverID string, roles ...string) ([]models.DocumentApproval, error) {
	const op = "approval.PendingForApprover"

	q := e.db.WithContext(ctx).
		Model(&models.DocumentApproval{}).
		Joins("JOIN documents ON documents.id = document_approvals.document_id AND documents.version = document_approvals.document_version").
		Where("document_approvals.status IN ?", []models.ApprovalStatus{models.ApprovalStatusPending, models.ApprovalStatusDelegated}).
		Where("documents.status NOT IN ?", []models.DocumentStatus{models.DocumentStatusObsolete, models.DocumentStatusArchived})

	unassigned := "(document_approvals.approver_id = '' OR document_approvals.approver_id IS NULL)"
	switch {
	case approverID != "" && len(roles) > 0:
		q = q.Where("document_approvals.approver_id = ? OR ("+unassigned+" AND document_approvals.role IN ?)", approverID, roles)
	case approverID != "":
		q = q.Where("document_approvals.approver_id = ?", approverID)
	case len(roles) > 0:
		q = q.Where(unassigned+" AND document_approvals.role IN ?", roles)
	default:
		return nil, docerr.Invalid(op, fmt.Errorf("approver or role is required"))
	}

	var approvals []models.DocumentApproval
	err := q.Order("document_approvals.created_at ASC, document_approvals.order_index ASC").
		Find(&approvals).Error
	if err != nil {
		return nil, docerr.FromDB(op, "document_approval", approverID, err)
	}
	return approvals, nil
}
