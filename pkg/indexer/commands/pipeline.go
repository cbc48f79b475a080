// Package commands holds the steps of the reindex pipeline.
package commands

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/evidence"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/search"
	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// ReindexConfig holds the collaborators of the reindex pipeline.
type ReindexConfig struct {
	DB        *gorm.DB
	Storage   storage.FileStorage
	Extractor extraction.Extractor

	// Search is optional; without it documents are not indexed.
	Search search.Provider

	Tables         *evidence.Tables
	MaxFileSize    int64
	MaxContentSize int
	MaxTags        int
	Now            func() time.Time
	Logger         hclog.Logger
}

// NewReindexPipeline builds the standard pipeline: download, extract,
// clean, tags, cross references, merge tags, hash, save and optionally
// search index.
func NewReindexPipeline(cfg ReindexConfig) *indexer.Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cmds := []indexer.Command{
		&DownloadCommand{Storage: cfg.Storage, MaxSize: cfg.MaxFileSize},
		&ExtractContentCommand{Extractor: cfg.Extractor, MaxSize: cfg.MaxContentSize},
		&CleanTextCommand{},
		&ExtractTagsCommand{Tables: cfg.Tables, MaxTags: cfg.MaxTags},
		&CrossReferenceCommand{},
		&MergeTagsCommand{},
		&CalculateHashCommand{Logger: logger.Named("hash")},
		&SaveCommand{DB: cfg.DB, Now: cfg.Now},
	}
	if cfg.Search != nil {
		cmds = append(cmds, &IndexCommand{SearchProvider: cfg.Search})
	}

	return &indexer.Pipeline{
		Name:     "reindex",
		Commands: cmds,
		Logger:   logger.Named("pipeline"),
	}
}
