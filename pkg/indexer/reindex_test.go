package indexer_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer/commands"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/storage/local"
)

var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	fs        *local.Storage
	reindexer *indexer.Reindexer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	fs := local.New(afero.NewMemMapFs())
	p := commands.NewReindexPipeline(commands.ReindexConfig{
		DB:        db,
		Storage:   fs,
		Extractor: extraction.PlainText{},
		Now:       func() time.Time { return base.Add(time.Hour) },
	})
	r, err := indexer.NewReindexer(db, p, indexer.WithDelay(0))
	require.NoError(t, err)
	return &fixture{db: db, fs: fs, reindexer: r}
}

// addDoc creates a document; content "" leaves the file missing.
func (f *fixture) addDoc(t *testing.T, n int, fileType, content string) *models.Document {
	t.Helper()
	doc := &models.Document{
		CompanyID:     "acme",
		ControlNumber: fmt.Sprintf("DOC-SWP-%04d", n),
		TypeCode:      "SWP",
		Title:         fmt.Sprintf("Procedure %d", n),
		FileType:      fileType,
		CreatedAt:     base.Add(time.Duration(n) * time.Minute),
	}
	if fileType != "" {
		doc.FileRef = fmt.Sprintf("acme/%d.%s", n, fileType)
	}
	require.NoError(t, f.db.Create(doc).Error)
	if content != "" {
		require.NoError(t, f.fs.Put(context.Background(), doc.FileRef, strings.NewReader(content), ""))
	}
	return doc
}

func TestNewReindexer_Validation(t *testing.T) {
	db := dbtest.New(t)
	_, err := indexer.NewReindexer(nil, &indexer.Pipeline{Commands: []indexer.Command{&commands.CleanTextCommand{}}})
	assert.Error(t, err)
	_, err = indexer.NewReindexer(db, &indexer.Pipeline{})
	assert.Error(t, err)
}

func TestNeedsReindex(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	fresh := f.addDoc(t, 1, "txt", "hazard")
	stale := f.addDoc(t, 2, "pdf", "")
	current := f.addDoc(t, 3, "docx", "")
	f.addDoc(t, 4, "png", "")
	f.addDoc(t, 5, "", "")

	extracted := base
	require.NoError(t, f.db.Model(&models.Document{}).Where("id = ?", stale.ID).Updates(map[string]any{
		"text_extracted_at": extracted,
		"file_updated_at":   extracted.Add(time.Hour),
	}).Error)
	require.NoError(t, f.db.Model(&models.Document{}).Where("id = ?", current.ID).Updates(map[string]any{
		"text_extracted_at": extracted.Add(time.Hour),
		"file_updated_at":   extracted,
	}).Error)

	docs, err := f.reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "acme"}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID, stale.ID}, ids(docs))

	docs, err = f.reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "acme"}, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID, stale.ID, current.ID}, ids(docs))

	docs, err = f.reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "acme"}, true, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = f.reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "other"}, true, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = f.reindexer.NeedsReindex(ctx, indexer.Filter{Statuses: []models.DocumentStatus{models.DocumentStatusActive}}, true, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReindexBatch_ContinuesPastFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var docs []*models.Document
	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf("Step-by-step lockout procedure number %d.", i)
		if i == 3 {
			content = "" // file missing from storage
		}
		docs = append(docs, f.addDoc(t, i, "txt", content))
	}

	var progress []indexer.Progress
	summary, err := f.reindexer.ReindexBatch(ctx, indexer.BatchOptions{
		Filter:   indexer.Filter{CompanyID: "acme"},
		Progress: func(p indexer.Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.False(t, summary.Cancelled)
	assert.True(t, summary.Duration > 0)
	require.Len(t, summary.Items, 5)

	for i, item := range summary.Items {
		assert.Equal(t, docs[i].ID, item.DocumentID)
		if i == 2 {
			assert.Equal(t, indexer.ItemFailed, item.Status)
			assert.Contains(t, item.Error, "download")
			continue
		}
		assert.Equal(t, indexer.ItemSuccess, item.Status, item.Error)
		assert.Contains(t, item.Tags, "lockout")
	}

	require.Len(t, progress, 5)
	assert.Equal(t, 3, progress[2].Done)
	assert.Equal(t, 5, progress[2].Total)
	assert.Equal(t, indexer.ItemFailed, progress[2].Item.Status)

	failed, err := models.GetDocument(f.db, docs[2].ID)
	require.NoError(t, err)
	assert.Nil(t, failed.TextExtractedAt)
	assert.Equal(t, int64(0), failed.LockVersion)

	ok, err := models.GetDocument(f.db, docs[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "Step-by-step lockout procedure number 4.", ok.ExtractedText)

	// Only the failed document still needs work.
	remaining, err := f.reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "acme"}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{docs[2].ID}, ids(remaining))
}

func TestReindexBatch_ExplicitIDsAndSkips(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	withText := f.addDoc(t, 1, "txt", "Emergency evacuation drill.")
	image := f.addDoc(t, 2, "png", "")
	noFile := f.addDoc(t, 3, "", "")

	summary, err := f.reindexer.ReindexBatch(ctx, indexer.BatchOptions{
		DocumentIDs: []string{noFile.ID, "missing-id", image.ID, withText.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, indexer.ItemSkipped, summary.Items[0].Status)
	assert.Equal(t, indexer.ItemSkipped, summary.Items[1].Status)
	assert.Equal(t, withText.ID, summary.Items[2].DocumentID)
	assert.Equal(t, []string{"drill", "emergency", "evacuation"}, summary.Items[2].Tags)
}

func TestReindexBatch_Cancelled(t *testing.T) {
	f := setup(t)
	for i := 1; i <= 3; i++ {
		f.addDoc(t, i, "txt", "inspection checklist")
	}

	ctx, cancel := context.WithCancel(context.Background())
	summary, err := f.reindexer.ReindexBatch(ctx, indexer.BatchOptions{
		Progress: func(p indexer.Progress) {
			if p.Done == 1 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 3, summary.Total)
	assert.Len(t, summary.Items, 1)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestReindexDocument(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc := f.addDoc(t, 1, "csv", "date,inspection\n2026-01-01,ok")

	res, err := f.reindexer.ReindexDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, indexer.ItemSuccess, res.Status)
	assert.Equal(t, "DOC-SWP-0001", res.ControlNumber)
	assert.Equal(t, []string{"inspection"}, res.Tags)

	_, err = f.reindexer.ReindexDocument(ctx, "nope")
	assert.True(t, docerr.IsNotFound(err))
}

func ids(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
