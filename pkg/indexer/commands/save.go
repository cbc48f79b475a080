package commands

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/lifecycle"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// SaveCommand writes the extracted text and derived metadata back to the
// document through the audited lifecycle write.
type SaveCommand struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Name returns the command name.
func (c *SaveCommand) Name() string {
	return "save"
}

// Execute saves the document.
func (c *SaveCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	const op = "indexer.Save"

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	at := now().UTC()

	fields := map[string]any{
		"extracted_text":    doc.Content,
		"page_count":        doc.PageCount,
		"text_extracted_at": at,
		"content_hash":      doc.ContentHash,
		"tags":              models.StringArray(doc.Tags),
		"cross_references":  models.StringArray(doc.CrossReferences),
	}
	note := fmt.Sprintf("extracted %d characters", len(doc.Content))
	if !doc.ContentChanged {
		note += ", content unchanged"
	}
	if n := len(doc.CrossReferences); n > 0 {
		note += fmt.Sprintf(", %d cross references", n)
	}

	return lifecycle.RetryConflicts(ctx, func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Reload: the document may have changed since it was queued.
			current, err := lifecycle.Load(ctx, tx, op, doc.Document.ID)
			if err != nil {
				return err
			}
			if err := lifecycle.Apply(ctx, tx, current, lifecycle.Change{
				Action: lifecycle.ActionReindexed,
				Actor:  "system",
				Note:   note,
				Fields: fields,
				At:     at,
			}); err != nil {
				return err
			}
			doc.Document = current
			return nil
		})
	})
}
