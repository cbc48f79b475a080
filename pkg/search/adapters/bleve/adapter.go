package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/doccontrol/pkg/search"
)

// Adapter implements search.Provider for Bleve (embedded full-text search).
type Adapter struct {
	docsIndex bleve.Index
	docsPath  string
}

// Config contains Bleve configuration.
type Config struct {
	IndexPath string // Base path for the index (e.g., "./data/fts.index")

	// InMemory keeps the index in memory and ignores IndexPath.
	InMemory bool
}

// NewAdapter creates a new Bleve search adapter.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.InMemory {
		idx, err := bleve.NewMemOnly(createDocumentMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &Adapter{docsIndex: idx}, nil
	}

	if cfg.IndexPath == "" {
		return nil, fmt.Errorf("bleve index path required")
	}
	if err := os.MkdirAll(cfg.IndexPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	adapter := &Adapter{docsPath: filepath.Join(cfg.IndexPath, "documents.bleve")}
	idx, err := openOrCreateIndex(adapter.docsPath, createDocumentMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to open docs index: %w", err)
	}
	adapter.docsIndex = idx
	return adapter, nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// createDocumentMapping creates the index mapping for documents.
func createDocumentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en" // English analyzer with stemming

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()

	// Searchable text fields
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)

	// Keyword fields for exact matching and faceting
	docMapping.AddFieldMappingsAt("objectID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("companyId", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("controlNumber", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("typeCode", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("version", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("status", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("tags", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("auditElements", keywordFieldMapping)

	docMapping.AddFieldMappingsAt("modifiedTime", numericFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "bleve"
}

// Healthy checks if the search backend is accessible.
func (a *Adapter) Healthy(ctx context.Context) error {
	if a.docsIndex == nil {
		return &search.Error{Op: "Healthy", Err: search.ErrBackendUnavailable, Msg: "index is not initialized"}
	}
	if _, err := a.docsIndex.DocCount(); err != nil {
		return &search.Error{Op: "Healthy", Err: err, Msg: "docs index unhealthy"}
	}
	return nil
}

// DocumentIndex returns the document search interface.
func (a *Adapter) DocumentIndex() search.DocumentIndex {
	return &documentIndex{adapter: a}
}

// Close closes the Bleve index.
func (a *Adapter) Close() error {
	if a.docsIndex == nil {
		return nil
	}
	return a.docsIndex.Close()
}

// documentIndex implements search.DocumentIndex.
type documentIndex struct {
	adapter *Adapter
}

func (d *documentIndex) index() bleve.Index {
	return d.adapter.docsIndex
}

// Index adds or updates a document in the search index.
func (d *documentIndex) Index(ctx context.Context, doc *search.Document) error {
	if doc == nil || doc.ObjectID == "" {
		return &search.Error{Op: "Index", Err: search.ErrIndexingFailed, Msg: "object id is required"}
	}
	if err := d.index().Index(doc.ObjectID, doc); err != nil {
		return &search.Error{Op: "Index", Err: err, Msg: doc.ObjectID}
	}
	return nil
}

// IndexBatch adds or updates multiple documents. Documents without an
// object id are reported together and nothing is written.
func (d *documentIndex) IndexBatch(ctx context.Context, docs []*search.Document) error {
	batch := d.index().NewBatch()

	var result *multierror.Error
	for i, doc := range docs {
		if doc == nil || doc.ObjectID == "" {
			result = multierror.Append(result, fmt.Errorf("document %d: object id is required", i))
			continue
		}
		if err := batch.Index(doc.ObjectID, doc); err != nil {
			result = multierror.Append(result, fmt.Errorf("document %s: %w", doc.ObjectID, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return &search.Error{Op: "IndexBatch", Err: search.ErrIndexingFailed, Msg: err.Error()}
	}

	return d.index().Batch(batch)
}

// Delete removes a document from the search index.
func (d *documentIndex) Delete(ctx context.Context, docID string) error {
	return d.index().Delete(docID)
}

// Search performs a search query.
func (d *documentIndex) Search(ctx context.Context, searchQuery *search.SearchQuery) (*search.SearchResult, error) {
	if searchQuery == nil {
		return nil, &search.Error{Op: "Search", Err: search.ErrInvalidQuery, Msg: "query is required"}
	}
	return performSearch(ctx, d.index(), searchQuery)
}

// GetObject retrieves a single document by ID from the search index.
func (d *documentIndex) GetObject(ctx context.Context, docID string) (*search.Document, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docID}))
	req.Fields = []string{"*"}
	res, err := d.index().SearchInContext(ctx, req)
	if err != nil {
		return nil, &search.Error{Op: "GetObject", Err: err}
	}
	if len(res.Hits) == 0 {
		return nil, &search.Error{Op: "GetObject", Err: search.ErrNotFound, Msg: docID}
	}
	return hitToDocument(res.Hits[0].ID, res.Hits[0].Fields), nil
}

// Clear removes all documents from the index.
func (d *documentIndex) Clear(ctx context.Context) error {
	for {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = 500
		res, err := d.index().SearchInContext(ctx, req)
		if err != nil {
			return &search.Error{Op: "Clear", Err: err}
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := d.index().NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := d.index().Batch(batch); err != nil {
			return &search.Error{Op: "Clear", Err: err}
		}
	}
}

// performSearch executes a search query on a Bleve index.
func performSearch(ctx context.Context, index bleve.Index, searchQuery *search.SearchQuery) (*search.SearchResult, error) {
	startTime := time.Now()

	var q query.Query
	if searchQuery.Query == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		mq := bleve.NewMatchQuery(searchQuery.Query)
		mq.Analyzer = "en"
		q = mq
	}

	// Build filter queries
	var filterQueries []query.Query
	for field, values := range searchQuery.Filters {
		if len(values) == 0 {
			continue
		}
		// OR across values of the same field
		disjunction := bleve.NewDisjunctionQuery()
		for _, value := range values {
			term := bleve.NewTermQuery(value)
			term.SetField(field)
			disjunction.AddQuery(term)
		}
		filterQueries = append(filterQueries, disjunction)
	}
	if len(filterQueries) > 0 {
		q = bleve.NewConjunctionQuery(append([]query.Query{q}, filterQueries...)...)
	}

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Fields = []string{"*"}

	perPage := searchQuery.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := searchQuery.Page
	if page < 0 {
		page = 0
	}
	searchRequest.From = page * perPage
	searchRequest.Size = perPage

	if searchQuery.SortBy != "" {
		field := searchQuery.SortBy
		if strings.ToLower(searchQuery.SortOrder) == "desc" {
			field = "-" + field
		}
		searchRequest.SortBy([]string{field})
	}

	for _, facetName := range searchQuery.Facets {
		searchRequest.AddFacet(facetName, bleve.NewFacetRequest(facetName, 100))
	}

	searchResult, err := index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, &search.Error{Op: "Search", Err: err, Msg: "search failed"}
	}

	hits := make([]*search.Document, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		hits = append(hits, hitToDocument(hit.ID, hit.Fields))
	}

	facets := &search.Facets{
		TypeCodes: make(map[string]int),
		Statuses:  make(map[string]int),
		Tags:      make(map[string]int),
	}
	for name, dest := range map[string]map[string]int{
		"typeCode": facets.TypeCodes,
		"status":   facets.Statuses,
		"tags":     facets.Tags,
	} {
		if f := searchResult.Facets[name]; f != nil && f.Terms != nil {
			for _, term := range f.Terms.Terms() {
				dest[term.Term] = term.Count
			}
		}
	}

	totalPages := int(searchResult.Total) / perPage
	if int(searchResult.Total)%perPage > 0 {
		totalPages++
	}

	return &search.SearchResult{
		Hits:       hits,
		TotalHits:  int(searchResult.Total),
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		Facets:     facets,
		QueryTime:  time.Since(startTime),
	}, nil
}

// hitToDocument rebuilds a document from stored fields.
func hitToDocument(id string, fields map[string]interface{}) *search.Document {
	doc := &search.Document{ObjectID: id}
	str := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	doc.CompanyID = str("companyId")
	doc.ControlNumber = str("controlNumber")
	doc.TypeCode = str("typeCode")
	doc.Title = str("title")
	doc.Description = str("description")
	doc.Version = str("version")
	doc.Status = str("status")
	doc.Content = str("content")
	doc.Tags = strs(fields["tags"])
	doc.AuditElements = strs(fields["auditElements"])
	if mt, ok := fields["modifiedTime"].(float64); ok {
		doc.ModifiedTime = int64(mt)
	}
	return doc
}

// strs handles both single and multi-valued stored fields.
func strs(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
