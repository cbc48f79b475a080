// Package evidence links documents to audit-framework elements and reports
// how well each element is evidenced.
package evidence

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
)

// Linker detects, persists and reports audit evidence.
type Linker struct {
	db            *gorm.DB
	logger        hclog.Logger
	tables        *Tables
	now           func() time.Time
	minConfidence int
}

// Option is a functional option for creating a Linker.
type Option func(*Linker)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTables replaces the built-in lookup tables.
func WithTables(t *Tables) Option {
	return func(l *Linker) {
		if t != nil {
			l.tables = t
		}
	}
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Linker) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMinConfidence sets the default auto-link threshold.
func WithMinConfidence(c int) Option {
	return func(l *Linker) {
		if c > 0 {
			l.minConfidence = c
		}
	}
}

// New creates a Linker.
func New(db *gorm.DB, opts ...Option) *Linker {
	l := &Linker{
		db:            db,
		logger:        hclog.NewNullLogger(),
		tables:        DefaultTables(),
		now:           time.Now,
		minConfidence: DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("evidence")
	return l
}

// Tables returns the lookup tables in use.
func (l *Linker) Tables() *Tables {
	return l.tables
}

// DetectRelevantAuditElements scores a document against every element.
// When text is empty the document's cached extracted text is used.
func (l *Linker) DetectRelevantAuditElements(doc *models.Document, text string) []Match {
	if text == "" {
		text = doc.ExtractedText
	}
	return Detect(l.tables, doc, text)
}

// LinkResult is the outcome of a linking operation.
type LinkResult struct {
	Document *models.Document `json:"document"`
	Matches  []Match          `json:"matches,omitempty"`

	// Added lists the elements newly linked by this call.
	Added []string `json:"added"`
}

// AutoLinkDocument links every element detected at or above minConfidence
// (the linker default when <= 0). Linking is a set union, so repeating a
// call with the same text changes nothing.
func (l *Linker) AutoLinkDocument(ctx context.Context, documentID, text string, minConfidence int) (*LinkResult, error) {
	const op = "evidence.AutoLinkDocument"

	if minConfidence <= 0 {
		minConfidence = l.minConfidence
	}

	result := &LinkResult{}
	err := lifecycle.RetryConflicts(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			doc, err := lifecycle.Load(ctx, tx, op, documentID)
			if err != nil {
				return err
			}
			if doc.Status.IsTerminal() {
				return docerr.Precondition(op, "document", doc.ID, "document is %s", doc.Status)
			}

			matches := l.DetectRelevantAuditElements(doc, text)
			var qualifying []Match
			for _, m := range matches {
				if m.Confidence >= minConfidence {
					qualifying = append(qualifying, m)
				}
			}
			result.Matches = qualifying
			result.Document = doc
			result.Added = added(doc.AuditElements, Qualifying(qualifying, minConfidence))
			if len(result.Added) == 0 {
				return nil
			}

			notes := make([]string, len(qualifying))
			for i, m := range qualifying {
				notes[i] = fmt.Sprintf("%s (%d)", m.Element, m.Confidence)
			}
			return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
				Action: lifecycle.ActionAutoLinked,
				Actor:  "system",
				Note:   "auto-linked elements " + strings.Join(notes, ", "),
				Fields: map[string]any{"audit_elements": sorted(doc.AuditElements.Union(result.Added...))},
				At:     l.now().UTC(),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	if len(result.Added) > 0 {
		l.logger.Info("auto-linked audit elements",
			"document_id", documentID,
			"added", strings.Join(result.Added, ","),
			"min_confidence", minConfidence,
		)
	}
	return result, nil
}

// LinkElements manually links elements to a document.
func (l *Linker) LinkElements(ctx context.Context, documentID string, elements []string, actor string) (*LinkResult, error) {
	const op = "evidence.LinkElements"

	if len(elements) == 0 {
		return nil, docerr.Invalid(op, fmt.Errorf("at least one element is required"))
	}
	known := map[string]bool{}
	for _, el := range l.tables.Elements() {
		known[el] = true
	}
	for _, el := range elements {
		if !known[el] {
			return nil, docerr.Invalid(op, fmt.Errorf("unknown audit element %q", el))
		}
	}

	result := &LinkResult{}
	err := lifecycle.RetryConflicts(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			doc, err := lifecycle.Load(ctx, tx, op, documentID)
			if err != nil {
				return err
			}
			result.Document = doc
			result.Added = added(doc.AuditElements, elements)
			if len(result.Added) == 0 {
				return nil
			}
			return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
				Action: lifecycle.ActionUpdated,
				Actor:  actor,
				Note:   "linked elements " + strings.Join(result.Added, ", "),
				Fields: map[string]any{"audit_elements": sorted(doc.AuditElements.Union(result.Added...))},
				At:     l.now().UTC(),
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UnlinkElement removes an element from a document's linked set.
func (l *Linker) UnlinkElement(ctx context.Context, documentID, element, actor string) (*models.Document, error) {
	const op = "evidence.UnlinkElement"

	var doc *models.Document
	err := lifecycle.RetryConflicts(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			if doc, err = lifecycle.Load(ctx, tx, op, documentID); err != nil {
				return err
			}
			if !doc.AuditElements.Contains(element) {
				return docerr.Precondition(op, "document", doc.ID, "element %s is not linked", element)
			}
			return lifecycle.Apply(ctx, tx, doc, lifecycle.Change{
				Action: lifecycle.ActionUpdated,
				Actor:  actor,
				Note:   "unlinked element " + element,
				Fields: map[string]any{"audit_elements": doc.AuditElements.Without(element)},
				At:     l.now().UTC(),
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// added returns the members of want missing from have, in order.
func added(have models.StringArray, want []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, el := range want {
		if el == "" || have.Contains(el) || seen[el] {
			continue
		}
		seen[el] = true
		out = append(out, el)
	}
	return out
}

// sorted orders elements numerically.
func sorted(els models.StringArray) models.StringArray {
	SortElements(els)
	return els
}
