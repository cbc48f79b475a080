package commands

import (
	"context"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/hashicorp-forge/doccontrol/pkg/controlnumber"
	"github.com/hashicorp-forge/doccontrol/pkg/evidence"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
)

// DefaultMaxTags caps keyword tags extracted from one document.
const DefaultMaxTags = 20

// ExtractTagsCommand derives keyword tags from the content: every audit
// keyword found in the text becomes a kebab-case tag.
type ExtractTagsCommand struct {
	Tables  *evidence.Tables
	MaxTags int
}

// Name returns the command name.
func (c *ExtractTagsCommand) Name() string {
	return "extract-tags"
}

// Execute extracts tags.
func (c *ExtractTagsCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	tables := c.Tables
	if tables == nil {
		tables = evidence.DefaultTables()
	}
	max := c.MaxTags
	if max <= 0 {
		max = DefaultMaxTags
	}

	var tags []string
	seen := map[string]bool{}
	for _, kw := range tables.MatchingKeywords(doc.Content) {
		tag := NormalizeTag(kw)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	if len(tags) > max {
		tags = tags[:max]
	}
	doc.Tags = tags
	return nil
}

// NormalizeTag converts free text to a kebab-case tag.
func NormalizeTag(s string) string {
	return strcase.ToKebab(strings.TrimSpace(s))
}

// CrossReferenceCommand finds other control numbers mentioned in the
// content.
type CrossReferenceCommand struct{}

// Name returns the command name.
func (c *CrossReferenceCommand) Name() string {
	return "cross-references"
}

// Execute detects cross references.
func (c *CrossReferenceCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	refs := controlnumber.FindReferences(doc.Content, doc.Document.ControlNumber)
	sort.Strings(refs)
	doc.CrossReferences = refs
	return nil
}

// MergeTagsCommand combines extracted tags with the tags already on the
// document, dropping duplicates.
type MergeTagsCommand struct{}

// Name returns the command name.
func (c *MergeTagsCommand) Name() string {
	return "merge-tags"
}

// Execute merges tags.
func (c *MergeTagsCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	normalized := make([]string, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		normalized = append(normalized, NormalizeTag(t))
	}
	doc.Tags = doc.Document.Tags.Union(normalized...)
	return nil
}
