package commands

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/extraction"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// DownloadCommand reads the document's file from storage. Documents
// without a file or with a file type that carries no text are skipped.
type DownloadCommand struct {
	Storage storage.FileStorage
	MaxSize int64 // Maximum bytes read (0 = no limit)
}

// Name returns the command name.
func (c *DownloadCommand) Name() string {
	return "download"
}

// Execute downloads the file.
func (c *DownloadCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	d := doc.Document
	if strings.TrimSpace(d.FileRef) == "" {
		return indexer.Skip("document has no file")
	}

	fileType := strings.ToLower(strings.TrimPrefix(d.FileType, "."))
	if fileType == "" {
		fileType = storage.Ext(d.FileRef)
	}
	if !extraction.IsTextBearing(fileType) {
		return indexer.Skip("file type %q has no extractable text", fileType)
	}
	doc.FileType = fileType

	data, err := storage.ReadAll(ctx, c.Storage, d.FileRef, c.MaxSize)
	if err != nil {
		return docerr.Dependency("indexer.download", c.Storage.Name(), fmt.Errorf("failed to download %s: %w", d.FileRef, err))
	}
	doc.Data = data
	return nil
}

// ExtractContentCommand turns the downloaded file into text. It can
// optionally trim content to a maximum size to stay within search
// provider limits.
type ExtractContentCommand struct {
	Extractor extraction.Extractor
	MaxSize   int // Maximum content size in bytes (0 = no limit)
}

// Name returns the command name.
func (c *ExtractContentCommand) Name() string {
	return "extract-content"
}

// Execute extracts content from the document.
func (c *ExtractContentCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	if doc.Data == nil {
		return fmt.Errorf("document not downloaded, run download command first")
	}
	if !c.Extractor.Supports(doc.FileType) {
		return indexer.Skip("no extractor for file type %q", doc.FileType)
	}

	res, err := c.Extractor.Extract(ctx, bytes.NewReader(doc.Data), doc.FileType)
	if err != nil {
		return docerr.Dependency("indexer.extract", "extraction", err)
	}

	content := res.Text
	// Trim if exceeds max size
	if c.MaxSize > 0 && len(content) > c.MaxSize {
		content = content[:c.MaxSize]
	}

	doc.Content = content
	doc.PageCount = res.PageCount
	doc.Data = nil
	return nil
}
