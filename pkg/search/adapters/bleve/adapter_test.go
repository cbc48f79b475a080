package bleve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/pkg/search"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(&Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seed(t *testing.T, idx search.DocumentIndex) {
	t.Helper()
	docs := []*search.Document{
		{
			ObjectID: "d1", CompanyID: "acme", ControlNumber: "POL-001", TypeCode: "POL",
			Title: "Health and Safety Policy", Version: "1.0", Status: "active",
			Tags: []string{"policy", "leadership"}, AuditElements: []string{"1"},
			Content: "Management commitment to worker safety and accountability.",
		},
		{
			ObjectID: "d2", CompanyID: "acme", ControlNumber: "SWP-001", TypeCode: "SWP",
			Title: "Working at Heights", Version: "2.0", Status: "active",
			Tags: []string{"fall-protection"}, AuditElements: []string{"3"},
			Content: "Fall protection harness inspection before each use.",
		},
		{
			ObjectID: "d3", CompanyID: "acme", ControlNumber: "SWP-002", TypeCode: "SWP",
			Title: "Confined Space Entry", Version: "0.1", Status: "draft",
			Tags: []string{"confined-space"},
			Content: "Atmospheric testing is required before entry.",
		},
	}
	require.NoError(t, idx.IndexBatch(context.Background(), docs))
}

func TestAdapter_Basics(t *testing.T) {
	a := newTestAdapter(t)
	assert.Equal(t, "bleve", a.Name())
	assert.NoError(t, a.Healthy(context.Background()))
}

func TestNewAdapter_RequiresPath(t *testing.T) {
	_, err := NewAdapter(&Config{})
	assert.Error(t, err)
}

func TestNewAdapter_OnDisk(t *testing.T) {
	dir := t.TempDir()
	a, err := NewAdapter(&Config{IndexPath: dir})
	require.NoError(t, err)
	require.NoError(t, a.DocumentIndex().Index(context.Background(), &search.Document{ObjectID: "d1", Title: "Lockout"}))
	require.NoError(t, a.Close())

	// Reopen the existing index.
	a, err = NewAdapter(&Config{IndexPath: dir})
	require.NoError(t, err)
	defer a.Close()
	got, err := a.DocumentIndex().GetObject(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Lockout", got.Title)
}

func TestDocumentIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := newTestAdapter(t).DocumentIndex()
	seed(t, idx)

	t.Run("full text", func(t *testing.T) {
		res, err := idx.Search(ctx, &search.SearchQuery{Query: "harness"})
		require.NoError(t, err)
		require.Equal(t, 1, res.TotalHits)
		assert.Equal(t, "SWP-001", res.Hits[0].ControlNumber)
	})

	t.Run("filters", func(t *testing.T) {
		res, err := idx.Search(ctx, &search.SearchQuery{
			Filters: map[string][]string{"typeCode": {"SWP"}, "status": {"active"}},
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.TotalHits)
		assert.Equal(t, "d2", res.Hits[0].ObjectID)
	})

	t.Run("facets", func(t *testing.T) {
		res, err := idx.Search(ctx, &search.SearchQuery{Facets: []string{"typeCode", "status", "tags"}})
		require.NoError(t, err)
		assert.Equal(t, 3, res.TotalHits)
		assert.Equal(t, 2, res.Facets.TypeCodes["SWP"])
		assert.Equal(t, 1, res.Facets.TypeCodes["POL"])
		assert.Equal(t, 2, res.Facets.Statuses["active"])
		assert.Equal(t, 1, res.Facets.Tags["leadership"])
	})

	t.Run("pagination", func(t *testing.T) {
		res, err := idx.Search(ctx, &search.SearchQuery{PerPage: 2, Page: 1, SortBy: "controlNumber"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalPages)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, "SWP-002", res.Hits[0].ControlNumber)
	})

	t.Run("nil query", func(t *testing.T) {
		_, err := idx.Search(ctx, nil)
		assert.True(t, errors.Is(err, search.ErrInvalidQuery))
	})
}

func TestDocumentIndex_GetObjectDeleteClear(t *testing.T) {
	ctx := context.Background()
	idx := newTestAdapter(t).DocumentIndex()
	seed(t, idx)

	got, err := idx.GetObject(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "POL-001", got.ControlNumber)
	assert.ElementsMatch(t, []string{"policy", "leadership"}, got.Tags)
	assert.Equal(t, []string{"1"}, got.AuditElements)

	require.NoError(t, idx.Delete(ctx, "d1"))
	_, err = idx.GetObject(ctx, "d1")
	assert.True(t, errors.Is(err, search.ErrNotFound))

	require.NoError(t, idx.Clear(ctx))
	res, err := idx.Search(ctx, &search.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
}

func TestDocumentIndex_IndexBatchRejectsMissingIDs(t *testing.T) {
	ctx := context.Background()
	idx := newTestAdapter(t).DocumentIndex()

	err := idx.IndexBatch(ctx, []*search.Document{{ObjectID: "ok"}, {Title: "no id"}, nil})
	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrIndexingFailed))

	res, err := idx.Search(ctx, &search.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
}
