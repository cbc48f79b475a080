// Package search defines the full-text search index that keeps controlled
// documents findable by their extracted content.
package search

import (
	"context"
	"time"

	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// Provider is a full-text search backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Healthy checks if the backend is usable.
	Healthy(ctx context.Context) error

	// DocumentIndex returns the controlled-document index.
	DocumentIndex() DocumentIndex

	// Close releases the backend's resources.
	Close() error
}

// DocumentIndex stores and queries documents.
type DocumentIndex interface {
	Index(ctx context.Context, doc *Document) error
	IndexBatch(ctx context.Context, docs []*Document) error
	Delete(ctx context.Context, docID string) error
	Search(ctx context.Context, q *SearchQuery) (*SearchResult, error)
	GetObject(ctx context.Context, docID string) (*Document, error)
	Clear(ctx context.Context) error
}

// Document is the indexed form of a controlled document.
type Document struct {
	ObjectID      string   `json:"objectID"`
	CompanyID     string   `json:"companyId"`
	ControlNumber string   `json:"controlNumber"`
	TypeCode      string   `json:"typeCode"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Version       string   `json:"version"`
	Status        string   `json:"status"`
	Tags          []string `json:"tags,omitempty"`
	AuditElements []string `json:"auditElements,omitempty"`
	Content       string   `json:"content,omitempty"`
	ModifiedTime  int64    `json:"modifiedTime"`
}

// FromModel builds the indexed form of doc with content as its body.
func FromModel(doc *models.Document, content string) *Document {
	return &Document{
		ObjectID:      doc.ID,
		CompanyID:     doc.CompanyID,
		ControlNumber: doc.ControlNumber,
		TypeCode:      doc.TypeCode,
		Title:         doc.Title,
		Description:   doc.Description,
		Version:       doc.Version,
		Status:        string(doc.Status),
		Tags:          append([]string(nil), doc.Tags...),
		AuditElements: append([]string(nil), doc.AuditElements...),
		Content:       content,
		ModifiedTime:  doc.UpdatedAt.Unix(),
	}
}

// SearchQuery is a full-text query with exact-match filters.
type SearchQuery struct {
	Query string `json:"query"`

	// Filters maps a field to accepted values. Values of one field are
	// ORed; fields are ANDed.
	Filters map[string][]string `json:"filters,omitempty"`

	Page      int      `json:"page"`
	PerPage   int      `json:"perPage"`
	SortBy    string   `json:"sortBy,omitempty"`
	SortOrder string   `json:"sortOrder,omitempty"`
	Facets    []string `json:"facets,omitempty"`
}

// SearchResult is a page of hits.
type SearchResult struct {
	Hits       []*Document   `json:"hits"`
	TotalHits  int           `json:"totalHits"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	TotalPages int           `json:"totalPages"`
	Facets     *Facets       `json:"facets,omitempty"`
	QueryTime  time.Duration `json:"queryTime"`
}

// Facets are value counts for faceted fields.
type Facets struct {
	TypeCodes map[string]int `json:"typeCodes"`
	Statuses  map[string]int `json:"statuses"`
	Tags      map[string]int `json:"tags"`
}
