package evidence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// CriticalOverdueDays is how far past its review date a document may be
// before the lapse is critical rather than a warning.
const CriticalOverdueDays = 90

// Severity grades a validation issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is a problem that makes a document invalid evidence.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Source records why a document is in a report.
type Source string

const (
	SourceLinked Source = "linked"
	SourceType   Source = "type"
)

// CoverageStatus is the overall state of an element.
type CoverageStatus string

const (
	CoverageComplete CoverageStatus = "complete"
	CoveragePartial  CoverageStatus = "partial"
	CoverageMissing  CoverageStatus = "missing"
)

// DocumentEvidence is one document's contribution to an element.
type DocumentEvidence struct {
	DocumentID     string                `json:"documentId"`
	ControlNumber  string                `json:"controlNumber"`
	Title          string                `json:"title"`
	TypeCode       string                `json:"typeCode"`
	Version        string                `json:"version"`
	Status         models.DocumentStatus `json:"status"`
	NextReviewDate *time.Time            `json:"nextReviewDate,omitempty"`
	Source         Source                `json:"source"`
	Valid          bool                  `json:"valid"`
	Issues         []Issue               `json:"issues,omitempty"`
}

// ElementReport describes how well an element is evidenced.
type ElementReport struct {
	CompanyID     string             `json:"companyId"`
	Element       string             `json:"element"`
	ElementName   string             `json:"elementName"`
	RequiredTypes []string           `json:"requiredTypes"`
	PresentTypes  []string           `json:"presentTypes"`
	MissingTypes  []string           `json:"missingTypes"`
	Documents     []DocumentEvidence `json:"documents"`
	ValidCount    int                `json:"validCount"`
	InvalidCount  int                `json:"invalidCount"`
	Coverage      float64            `json:"coverage"`
	Status        CoverageStatus     `json:"status"`
	GeneratedAt   time.Time          `json:"generatedAt"`
}

// CoverageSummary is the report for every element of a company.
type CoverageSummary struct {
	CompanyID       string          `json:"companyId"`
	Elements        []ElementReport `json:"elements"`
	Complete        int             `json:"complete"`
	Partial         int             `json:"partial"`
	Missing         int             `json:"missing"`
	AverageCoverage float64         `json:"averageCoverage"`
}

// ValidateDocument returns the issues that disqualify doc as evidence on
// the day asOf.
func ValidateDocument(doc *models.Document, asOf time.Time) []Issue {
	var issues []Issue
	switch {
	case doc.Status.IsTerminal():
		issues = append(issues, Issue{SeverityCritical, fmt.Sprintf("document is %s", doc.Status)})
	case !doc.Status.IsInForce():
		issues = append(issues, Issue{SeverityWarning, fmt.Sprintf("document is %s, not in force", doc.Status)})
	}

	if doc.NextReviewDate != nil {
		if days := models.DaysBetween(*doc.NextReviewDate, asOf); days > 0 {
			sev := SeverityWarning
			if days > CriticalOverdueDays {
				sev = SeverityCritical
			}
			issues = append(issues, Issue{sev, fmt.Sprintf("review overdue by %d days", days)})
		}
	}
	return issues
}

// GenerateElementEvidenceReport collects documents linked to element or of
// a type that maps to it, validates each and computes coverage of the
// element's required types.
func (l *Linker) GenerateElementEvidenceReport(ctx context.Context, companyID, element string) (*ElementReport, error) {
	const op = "evidence.GenerateElementEvidenceReport"

	if companyID == "" || element == "" {
		return nil, docerr.Invalid(op, fmt.Errorf("company and element are required"))
	}

	required := l.tables.Required(element)
	types := unique(append(l.tables.TypesForElement(element), required...))

	q := l.db.WithContext(ctx).Where("company_id = ?", companyID)
	if len(types) > 0 {
		q = q.Where("audit_elements LIKE ? OR type_code IN ?", models.JSONContainsPattern(element), types)
	} else {
		q = q.Where("audit_elements LIKE ?", models.JSONContainsPattern(element))
	}
	var docs []models.Document
	if err := q.Order("control_number ASC").Find(&docs).Error; err != nil {
		return nil, docerr.FromDB(op, "document", companyID, err)
	}

	now := l.now().UTC()
	today := models.DateOnly(now)
	r := &ElementReport{
		CompanyID:     companyID,
		Element:       element,
		ElementName:   l.tables.ElementNames[element],
		RequiredTypes: required,
		PresentTypes:  []string{},
		MissingTypes:  []string{},
		Documents:     make([]DocumentEvidence, 0, len(docs)),
		GeneratedAt:   now,
	}

	validTypes := map[string]bool{}
	for i := range docs {
		d := &docs[i]
		ev := DocumentEvidence{
			DocumentID:     d.ID,
			ControlNumber:  d.ControlNumber,
			Title:          d.Title,
			TypeCode:       d.TypeCode,
			Version:        d.Version,
			Status:         d.Status,
			NextReviewDate: d.NextReviewDate,
			Source:         SourceType,
			Issues:         ValidateDocument(d, today),
		}
		if d.AuditElements.Contains(element) {
			ev.Source = SourceLinked
		}
		ev.Valid = len(ev.Issues) == 0
		if ev.Valid {
			r.ValidCount++
			validTypes[strings.ToUpper(d.TypeCode)] = true
		} else {
			r.InvalidCount++
		}
		r.Documents = append(r.Documents, ev)
	}

	for _, t := range required {
		if validTypes[t] {
			r.PresentTypes = append(r.PresentTypes, t)
		} else {
			r.MissingTypes = append(r.MissingTypes, t)
		}
	}
	r.Coverage = coverage(len(r.PresentTypes), len(required), r.ValidCount)

	switch {
	case r.ValidCount == 0:
		r.Status = CoverageMissing
	case r.Coverage == 100 && r.InvalidCount == 0:
		r.Status = CoverageComplete
	default:
		r.Status = CoveragePartial
	}
	return r, nil
}

// CompanyCoverage runs the evidence report for every element.
func (l *Linker) CompanyCoverage(ctx context.Context, companyID string) (*CoverageSummary, error) {
	s := &CoverageSummary{CompanyID: companyID}
	var total float64
	for _, el := range l.tables.Elements() {
		r, err := l.GenerateElementEvidenceReport(ctx, companyID, el)
		if err != nil {
			return nil, err
		}
		s.Elements = append(s.Elements, *r)
		total += r.Coverage
		switch r.Status {
		case CoverageComplete:
			s.Complete++
		case CoveragePartial:
			s.Partial++
		case CoverageMissing:
			s.Missing++
		}
	}
	if len(s.Elements) > 0 {
		s.AverageCoverage = round2(total / float64(len(s.Elements)))
	}
	return s, nil
}

func coverage(present, required, valid int) float64 {
	if required == 0 {
		if valid > 0 {
			return 100
		}
		return 0
	}
	return round2(float64(present) / float64(required) * 100)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func unique(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
