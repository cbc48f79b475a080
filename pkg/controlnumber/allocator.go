// Package controlnumber allocates immutable, human-readable control numbers
// of the form <prefix>-<type>-<sequence> (for example DOC-POL-0007).
package controlnumber

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// DefaultSequenceWidth is the zero-padded width of the sequence component.
const DefaultSequenceWidth = 4

// Pattern matches control numbers embedded in free text.
var Pattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,9}-[A-Z]{2,6}-\d{3,}\b`)

// Allocation is the result of a successful allocation.
type Allocation struct {
	CompanyID     string
	TypeCode      string
	Sequence      int64
	ControlNumber string
}

// Allocator hands out per-company, per-type sequence numbers. It keeps no
// state of its own; atomicity comes from the row lock taken by the counter
// update inside the caller's transaction.
type Allocator struct {
	width  int
	logger hclog.Logger
}

// Option is a functional option for creating an Allocator.
type Option func(*Allocator)

// WithSequenceWidth sets the zero-padded sequence width.
func WithSequenceWidth(width int) Option {
	return func(a *Allocator) {
		if width > 0 {
			a.width = width
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Allocator.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		width:  DefaultSequenceWidth,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("controlnumber")
	return a
}

// Format renders a control number.
func (a *Allocator) Format(prefix, typeCode string, seq int64) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, typeCode, a.width, seq)
}

// Allocate reserves the next sequence for (companyID, docType). tx must be
// the caller's open transaction; the counter row stays locked until it
// commits, so concurrent callers for the same pair are serialized.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, companyID string, docType *models.DocumentType) (*Allocation, error) {
	const op = "controlnumber.Allocate"

	if companyID == "" || docType == nil || docType.Code == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("company and document type are required"))
	}
	tx = tx.WithContext(ctx)

	for attempt := 0; ; attempt++ {
		res := tx.Model(&models.ControlNumberSequence{}).
			Where("company_id = ? AND type_code = ?", companyID, docType.Code).
			Updates(map[string]any{
				"last_value": gorm.Expr("last_value + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, docerr.FromDB(op, "control_number_sequence", docType.Code, res.Error)
		}
		if res.RowsAffected == 1 {
			break
		}
		if attempt > 0 {
			return nil, docerr.Conflict(op, "control_number_sequence", docType.Code,
				fmt.Errorf("counter row missing after insert"))
		}

		// First allocation for this pair; a concurrent insert is fine.
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ControlNumberSequence{CompanyID: companyID, TypeCode: docType.Code}).Error
		if err != nil {
			return nil, docerr.FromDB(op, "control_number_sequence", docType.Code, err)
		}
	}

	var seq models.ControlNumberSequence
	err := tx.Where("company_id = ? AND type_code = ?", companyID, docType.Code).
		First(&seq).Error
	if err != nil {
		return nil, docerr.FromDB(op, "control_number_sequence", docType.Code, err)
	}

	alloc := &Allocation{
		CompanyID:     companyID,
		TypeCode:      docType.Code,
		Sequence:      seq.LastValue,
		ControlNumber: a.Format(docType.Prefix(), docType.Code, seq.LastValue),
	}

	a.logger.Debug("allocated control number",
		"company_id", companyID,
		"type", docType.Code,
		"control_number", alloc.ControlNumber,
	)

	return alloc, nil
}

// FindReferences returns the distinct control numbers mentioned in text,
// excluding self.
func FindReferences(text, self string) []string {
	matches := Pattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if m == self || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
