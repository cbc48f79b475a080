package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// DefaultDelay is the pause between documents in a batch.
const DefaultDelay = 100 * time.Millisecond

// ItemStatus is the outcome of reindexing one document.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// ItemResult records what happened to one document.
type ItemResult struct {
	DocumentID      string        `json:"documentId"`
	ControlNumber   string        `json:"controlNumber"`
	Status          ItemStatus    `json:"status"`
	Error           string        `json:"error,omitempty"`
	TextLength      int           `json:"textLength,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	CrossReferences []string      `json:"crossReferences,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// BatchSummary is the outcome of a batch run.
type BatchSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Items     []ItemResult  `json:"items"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
}

// Progress is reported after each document of a batch.
type Progress struct {
	Done  int
	Total int
	Item  ItemResult
}

// Filter narrows the documents considered for reindexing.
type Filter struct {
	CompanyID string
	TypeCodes []string
	Statuses  []models.DocumentStatus
	FolderID  *string
}

// BatchOptions configures ReindexBatch.
type BatchOptions struct {
	Filter Filter

	// Force reindexes documents whose text is already current.
	Force bool

	// Limit caps the number of documents; 0 means no limit.
	Limit int

	// DocumentIDs processes exactly these documents instead of querying.
	DocumentIDs []string

	Progress func(Progress)
}

// Reindexer refreshes extracted text and derived metadata of documents.
type Reindexer struct {
	db       *gorm.DB
	pipeline *Pipeline
	logger   hclog.Logger
	delay    time.Duration
}

// Option is a functional option for creating a Reindexer.
type Option func(*Reindexer)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(r *Reindexer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDelay sets the pause between documents in a batch.
func WithDelay(d time.Duration) Option {
	return func(r *Reindexer) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// NewReindexer creates a Reindexer running pipeline for each document.
func NewReindexer(db *gorm.DB, pipeline *Pipeline, opts ...Option) (*Reindexer, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if pipeline == nil || len(pipeline.Commands) == 0 {
		return nil, fmt.Errorf("pipeline with at least one command is required")
	}

	r := &Reindexer{
		db:       db,
		pipeline: pipeline,
		logger:   hclog.NewNullLogger(),
		delay:    DefaultDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("indexer")
	if pipeline.Logger == nil {
		pipeline.Logger = r.logger.Named("pipeline")
	}
	return r, nil
}

// NeedsReindex lists documents with a text-bearing file whose extracted
// text is missing or older than the file. With force every document with
// a text-bearing file is listed.
func (r *Reindexer) NeedsReindex(ctx context.Context, filter Filter, force bool, limit int) ([]models.Document, error) {
	const op = "indexer.NeedsReindex"

	q := r.db.WithContext(ctx).
		Where("file_ref IS NOT NULL AND file_ref <> ''").
		Where("LOWER(file_type) IN ?", extraction.TextBearingTypes)
	if !force {
		q = q.Where("text_extracted_at IS NULL OR (file_updated_at IS NOT NULL AND text_extracted_at < file_updated_at)")
	}
	q = applyFilter(q, filter)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var docs []models.Document
	if err := q.Order("created_at ASC, id ASC").Find(&docs).Error; err != nil {
		return nil, docerr.FromDB(op, "document", filter.CompanyID, err)
	}
	return docs, nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if len(f.TypeCodes) > 0 {
		q = q.Where("type_code IN ?", f.TypeCodes)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.FolderID != nil {
		q = q.Where("folder_id = ?", *f.FolderID)
	}
	return q
}

// ReindexDocument runs the pipeline for one document. Pipeline failures
// are reported in the result; only a missing document is an error.
func (r *Reindexer) ReindexDocument(ctx context.Context, documentID string) (*ItemResult, error) {
	const op = "indexer.ReindexDocument"

	doc, err := models.GetDocument(r.db.WithContext(ctx), documentID)
	if err != nil {
		return nil, docerr.FromDB(op, "document", documentID, err)
	}
	res := r.process(ctx, doc)
	return &res, nil
}

// ReindexBatch reindexes documents one at a time. A failing document is
// recorded and the batch continues. Cancelling ctx stops the batch before
// the next document.
func (r *Reindexer) ReindexBatch(ctx context.Context, opts BatchOptions) (*BatchSummary, error) {
	const op = "indexer.ReindexBatch"

	var docs []models.Document
	var err error
	if len(opts.DocumentIDs) > 0 {
		docs, err = r.loadByIDs(ctx, opts.DocumentIDs, opts.Limit)
	} else {
		docs, err = r.NeedsReindex(ctx, opts.Filter, opts.Force, opts.Limit)
	}
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{
		Total:     len(docs),
		Items:     make([]ItemResult, 0, len(docs)),
		StartedAt: time.Now().UTC(),
	}
	r.logger.Info("starting reindex batch", "documents", len(docs), "force", opts.Force)

	for i := range docs {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.delay):
			}
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
		}

		item := r.process(ctx, &docs[i])
		summary.Items = append(summary.Items, item)
		switch item.Status {
		case ItemSuccess:
			summary.Succeeded++
		case ItemFailed:
			summary.Failed++
		case ItemSkipped:
			summary.Skipped++
		}

		if opts.Progress != nil {
			opts.Progress(Progress{Done: i + 1, Total: len(docs), Item: item})
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	r.logger.Info("reindex batch completed",
		"op", op,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration,
	)
	return summary, nil
}

// loadByIDs loads documents in the order given. Unknown ids are dropped.
func (r *Reindexer) loadByIDs(ctx context.Context, ids []string, limit int) ([]models.Document, error) {
	const op = "indexer.ReindexBatch"

	var found []models.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, docerr.FromDB(op, "document", strings.Join(ids, ","), err)
	}
	byID := make(map[string]models.Document, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}

	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			r.logger.Warn("document not found", "document_id", id)
			continue
		}
		docs = append(docs, d)
		delete(byID, id)
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return docs, nil
}

func (r *Reindexer) process(ctx context.Context, doc *models.Document) ItemResult {
	dc := NewDocumentContext(doc)
	item := ItemResult{
		DocumentID:    doc.ID,
		ControlNumber: doc.ControlNumber,
		Status:        ItemSuccess,
	}

	err := r.pipeline.Process(ctx, dc)
	item.Duration = time.Since(dc.StartTime)

	switch {
	case err == nil:
		item.TextLength = len(dc.Content)
		item.Tags = dc.Tags
		item.CrossReferences = dc.CrossReferences
		r.logger.Debug("document reindexed",
			"document_id", doc.ID,
			"control_number", doc.ControlNumber,
			"text_length", item.TextLength,
			"duration", item.Duration,
		)
	case errors.Is(err, ErrSkipped):
		item.Status = ItemSkipped
		item.Error = err.Error()
	default:
		item.Status = ItemFailed
		item.Error = err.Error()
		r.logger.Warn("document reindex failed",
			"document_id", doc.ID,
			"control_number", doc.ControlNumber,
			"error", err,
		)
	}
	return item
}
