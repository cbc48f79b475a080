package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/pkg/database/dbtest"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
	"github.com/hashicorp-forge/doccontrol/pkg/registry"
)

func TestNew_Minimal(t *testing.T) {
	db := dbtest.New(t)

	srv, err := New(context.Background(), &config.Config{}, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	assert.NotNil(t, srv.Registry)
	assert.NotNil(t, srv.Reviews)
	assert.NotNil(t, srv.Distribution)
	assert.NotNil(t, srv.Archives)
	assert.NotNil(t, srv.Folders)
	assert.NotNil(t, srv.Evidence)
	assert.NotNil(t, srv.Notifier)
	assert.Nil(t, srv.Storage)
	assert.Nil(t, srv.SearchProvider)
	assert.Nil(t, srv.Reindexer, "no reindexer without storage")
	assert.Equal(t, 7, srv.Config.Archive.RetentionYears)
}

func TestNew_Required(t *testing.T) {
	_, err := New(context.Background(), nil, dbtest.New(t), nil)
	assert.Error(t, err)
	_, err = New(context.Background(), &config.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestNew_StorageSearchAndReindex(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	dbtest.SeedTypes(t, db)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lockout.txt"),
		[]byte("Lockout procedure for energized equipment. See DOC-POL-0001."), 0o644))

	cfg := &config.Config{
		Storage: &config.Storage{Local: &config.LocalStorage{Dir: dir}},
		Search:  &config.Search{Bleve: &config.Bleve{InMemory: true}},
		Reindex: &config.Reindex{Delay: "0s"},
	}
	srv, err := New(ctx, cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, srv.Close()) })

	require.NotNil(t, srv.Storage)
	require.NotNil(t, srv.SearchProvider)
	require.NotNil(t, srv.Reindexer)
	assert.Equal(t, "bleve", srv.SearchProvider.Name())

	doc, err := srv.Registry.CreateDocument(ctx, registry.CreateInput{
		CompanyID: "acme",
		TypeCode:  "MNT",
		Title:     "Lockout",
		FileRef:   "lockout.txt",
		Actor:     "alice",
	})
	require.NoError(t, err)

	pending, err := srv.Reindexer.NeedsReindex(ctx, indexer.Filter{CompanyID: "acme"}, false, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	item, err := srv.Reindexer.ReindexDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, indexer.ItemSuccess, item.Status, item.Error)
	assert.Contains(t, item.CrossReferences, "DOC-POL-0001")

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Contains(t, got.ExtractedText, "Lockout procedure")
	assert.NotNil(t, got.TextExtractedAt)
}

func TestNew_EvidenceTablesFile(t *testing.T) {
	cfg := &config.Config{Evidence: &config.Evidence{TablesFile: filepath.Join(t.TempDir(), "missing.yaml")}}
	_, err := New(context.Background(), cfg, dbtest.New(t), nil)
	assert.ErrorContains(t, err, "evidence tables")
}
