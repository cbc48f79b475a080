package commands

import (
	"context"
	"fmt"

	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/search"
)

// IndexCommand writes the saved document and its text to the search index.
// It runs after SaveCommand so the index sees the stored version.
type IndexCommand struct {
	SearchProvider search.Provider
}

func (c *IndexCommand) Name() string {
	return "search-index"
}

func (c *IndexCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	if err := c.SearchProvider.DocumentIndex().Index(ctx, search.FromModel(doc.Document, doc.Content)); err != nil {
		return fmt.Errorf("%s: %w", doc.ControlNumber(), err)
	}
	doc.Indexed = true
	return nil
}
