package commands_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer/commands"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/search/adapters/bleve"
	"github.com/hashicorp-forge/doccontrol/pkg/storage/local"
)

func TestDownloadCommand(t *testing.T) {
	ctx := context.Background()
	fs := local.New(afero.NewMemMapFs())
	require.NoError(t, fs.Put(ctx, "acme/swp.txt", strings.NewReader("Lockout procedure"), ""))

	t.Run("downloads file", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1", FileRef: "acme/swp.txt"})
		cmd := &commands.DownloadCommand{Storage: fs}
		require.NoError(t, cmd.Execute(ctx, doc))
		assert.Equal(t, "txt", doc.FileType)
		assert.Equal(t, "Lockout procedure", string(doc.Data))
	})

	t.Run("limits bytes read", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1", FileRef: "acme/swp.txt", FileType: "TXT"})
		cmd := &commands.DownloadCommand{Storage: fs, MaxSize: 7}
		require.NoError(t, cmd.Execute(ctx, doc))
		assert.Equal(t, "Lockout", string(doc.Data))
	})

	t.Run("skips documents without file", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1"})
		err := (&commands.DownloadCommand{Storage: fs}).Execute(ctx, doc)
		assert.True(t, errors.Is(err, indexer.ErrSkipped))
	})

	t.Run("skips files without text", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1", FileRef: "acme/photo.png"})
		err := (&commands.DownloadCommand{Storage: fs}).Execute(ctx, doc)
		assert.True(t, errors.Is(err, indexer.ErrSkipped))
	})

	t.Run("missing file is a dependency error", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1", FileRef: "acme/missing.txt"})
		err := (&commands.DownloadCommand{Storage: fs}).Execute(ctx, doc)
		require.Error(t, err)
		assert.True(t, docerr.IsDependency(err))
		assert.False(t, errors.Is(err, indexer.ErrSkipped))
	})
}

func TestExtractContentCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts content successfully", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1"})
		doc.FileType = "txt"
		doc.Data = []byte("Document content here")

		cmd := &commands.ExtractContentCommand{Extractor: extraction.PlainText{}}
		require.NoError(t, cmd.Execute(ctx, doc))
		assert.Equal(t, "Document content here", doc.Content)
		assert.Equal(t, 1, doc.PageCount)
		assert.Nil(t, doc.Data)
	})

	t.Run("trims content when exceeds max size", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1"})
		doc.FileType = "txt"
		doc.Data = []byte("This is a very long document content")

		cmd := &commands.ExtractContentCommand{Extractor: extraction.PlainText{}, MaxSize: 10}
		require.NoError(t, cmd.Execute(ctx, doc))
		assert.Equal(t, "This is a ", doc.Content)
	})

	t.Run("requires download", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1"})
		err := (&commands.ExtractContentCommand{Extractor: extraction.PlainText{}}).Execute(ctx, doc)
		assert.Error(t, err)
	})

	t.Run("skips unsupported types", func(t *testing.T) {
		doc := indexer.NewDocumentContext(&models.Document{ID: "d1"})
		doc.FileType = "pdf"
		doc.Data = []byte("%PDF")
		err := (&commands.ExtractContentCommand{Extractor: extraction.PlainText{}}).Execute(ctx, doc)
		assert.True(t, errors.Is(err, indexer.ErrSkipped))
	})
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "Wear   \t gloves", "Wear gloves"},
		{"strips emoji", "Fire drill 🔥 today", "Fire drill today"},
		{"drops control characters", "Step\x001\x07 done", "Step1 done"},
		{"normalizes line endings", "a\r\nb\rc", "a\nb\nc"},
		{"limits blank lines", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"trims", "  \n text \n  ", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commands.CleanText(tt.in))
		})
	}
}

func TestTagsAndCrossReferences(t *testing.T) {
	ctx := context.Background()
	doc := indexer.NewDocumentContext(&models.Document{
		ID:            "d1",
		ControlNumber: "DOC-SWP-0001",
		Tags:          models.StringArray{"site-a", "lockout"},
	})
	doc.Content = "This procedure covers Lockout and Confined Space entry. See DOC-HAZ-0002 and DOC-SWP-0001 and DOC-HAZ-0002."

	require.NoError(t, (&commands.ExtractTagsCommand{}).Execute(ctx, doc))
	assert.Equal(t, []string{"confined-space", "lockout", "procedure"}, doc.Tags)

	require.NoError(t, (&commands.CrossReferenceCommand{}).Execute(ctx, doc))
	assert.Equal(t, []string{"DOC-HAZ-0002"}, doc.CrossReferences)

	require.NoError(t, (&commands.MergeTagsCommand{}).Execute(ctx, doc))
	assert.Equal(t, []string{"confined-space", "lockout", "procedure", "site-a"}, doc.Tags)

	limited := indexer.NewDocumentContext(&models.Document{ID: "d2"})
	limited.Content = doc.Content
	require.NoError(t, (&commands.ExtractTagsCommand{MaxTags: 1}).Execute(ctx, limited))
	assert.Equal(t, []string{"confined-space"}, limited.Tags)
}

func TestCalculateHashCommand(t *testing.T) {
	ctx := context.Background()
	cmd := &commands.CalculateHashCommand{}

	a := indexer.NewDocumentContext(&models.Document{ID: "a"})
	a.Content = "line one\r\nline two\n"
	b := indexer.NewDocumentContext(&models.Document{ID: "b"})
	b.Content = "line one\nline two"

	require.NoError(t, cmd.Execute(ctx, a))
	require.NoError(t, cmd.Execute(ctx, b))
	assert.Len(t, a.ContentHash, 64)
	assert.Equal(t, a.ContentHash, b.ContentHash)

	assert.True(t, a.ContentChanged)

	same := indexer.NewDocumentContext(&models.Document{ID: "d", ContentHash: a.ContentHash})
	same.Content = "  line one\nline two  "
	require.NoError(t, cmd.Execute(ctx, same))
	assert.False(t, same.ContentChanged)

	empty := indexer.NewDocumentContext(&models.Document{ID: "c"})
	assert.ErrorIs(t, cmd.Execute(ctx, empty), commands.ErrNoText)
}

func TestReindexPipeline(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	fs := local.New(afero.NewMemMapFs())
	adapter, err := bleve.NewAdapter(&bleve.Config{InMemory: true})
	require.NoError(t, err)
	defer adapter.Close()

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	doc := &models.Document{
		CompanyID:     "acme",
		ControlNumber: "DOC-PPE-0001",
		TypeCode:      "PPE",
		Title:         "Respiratory Protection",
		FileRef:       "acme/ppe.md",
		FileType:      "md",
		Tags:          models.StringArray{"respiratory"},
	}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, fs.Put(ctx, doc.FileRef, strings.NewReader(
		"# Respirator fit testing 😷\n\nEvery worker wearing a respirator needs annual fit testing. See DOC-TRN-0004.",
	), "text/markdown"))

	p := commands.NewReindexPipeline(commands.ReindexConfig{
		DB:        db,
		Storage:   fs,
		Extractor: extraction.PlainText{},
		Search:    adapter,
		Now:       func() time.Time { return now },
	})
	dc := indexer.NewDocumentContext(doc)
	require.NoError(t, p.Process(ctx, dc))
	assert.True(t, dc.Indexed)

	stored, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.ExtractedText, "Every worker wearing a respirator")
	assert.NotContains(t, stored.ExtractedText, "😷")
	assert.Equal(t, models.StringArray{"respirator", "respiratory"}, stored.Tags)
	assert.Equal(t, models.StringArray{"DOC-TRN-0004"}, stored.CrossReferences)
	assert.Equal(t, commands.ContentHash(stored.ExtractedText), stored.ContentHash)
	require.NotNil(t, stored.TextExtractedAt)
	assert.True(t, stored.TextExtractedAt.Equal(now))
	assert.Equal(t, int64(1), stored.LockVersion)

	last := stored.AuditTrail[len(stored.AuditTrail)-1]
	assert.Equal(t, lifecycle.ActionReindexed, last.Action)
	assert.Equal(t, "system", last.Actor)

	hit, err := adapter.DocumentIndex().GetObject(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "DOC-PPE-0001", hit.ControlNumber)
	assert.Contains(t, hit.Content, "fit testing")
}
