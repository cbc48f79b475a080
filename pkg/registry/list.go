package registry

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// DefaultPerPage is the page size used when ListFilter.PerPage is unset.
const DefaultPerPage = 50

var sortColumns = map[string]string{
	"controlNumber":  "control_number",
	"title":          "title",
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"nextReviewDate": "next_review_date",
	"status":         "status",
}

// ListFilter selects documents. Zero values do not filter.
type ListFilter struct {
	CompanyID string
	TypeCodes []string
	Statuses  []models.DocumentStatus

	// FolderID restricts to one folder; a pointer to "" selects unfiled
	// documents.
	FolderID *string

	// Tags matches documents carrying any of the tags.
	Tags []string

	// AuditElement matches documents linked to the element.
	AuditElement string

	// Search matches a substring of the title or control number.
	Search string

	Page    int
	PerPage int

	// SortBy is one of controlNumber, title, createdAt, updatedAt,
	// nextReviewDate or status. A leading "-" sorts descending.
	SortBy string
}

// ListResult is a page of documents.
type ListResult struct {
	Documents []models.Document
	Total     int64
	Page      int
	PerPage   int
}

// ListDocuments returns the documents matching f.
func (r *Registry) ListDocuments(ctx context.Context, f ListFilter) (*ListResult, error) {
	const op = "registry.ListDocuments"

	q := r.db.WithContext(ctx).Model(&models.Document{})
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if len(f.TypeCodes) > 0 {
		codes := make([]string, len(f.TypeCodes))
		for i, c := range f.TypeCodes {
			codes[i] = strings.ToUpper(c)
		}
		q = q.Where("type_code IN ?", codes)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.FolderID != nil {
		if *f.FolderID == "" {
			q = q.Where("folder_id IS NULL")
		} else {
			q = q.Where("folder_id = ?", *f.FolderID)
		}
	}
	if len(f.Tags) > 0 {
		clauses := make([]string, len(f.Tags))
		args := make([]any, len(f.Tags))
		for i, tag := range f.Tags {
			clauses[i] = "tags LIKE ?"
			args[i] = models.JSONContainsPattern(tag)
		}
		q = q.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
	if f.AuditElement != "" {
		q = q.Where("audit_elements LIKE ?", models.JSONContainsPattern(f.AuditElement))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(control_number) LIKE ?)", like, like)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, docerr.FromDB(op, "document", "", err)
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := f.Page
	if page < 0 {
		page = 0
	}

	order := "control_number ASC"
	if f.SortBy != "" {
		key, dir := strings.TrimPrefix(f.SortBy, "-"), "ASC"
		if strings.HasPrefix(f.SortBy, "-") {
			dir = "DESC"
		}
		col, ok := sortColumns[key]
		if !ok {
			return nil, docerr.Invalid(op, fmt.Errorf("unknown sort field %q", f.SortBy))
		}
		order = col + " " + dir + ", id ASC"
	}

	var docs []models.Document
	err := q.Order(order).Limit(perPage).Offset(page * perPage).Find(&docs).Error
	if err != nil {
		return nil, docerr.FromDB(op, "document", "", err)
	}
	return &ListResult{Documents: docs, Total: total, Page: page, PerPage: perPage}, nil
}
