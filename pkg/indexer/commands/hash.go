package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
)

// ErrNoText is returned when extraction produced no text to store.
var ErrNoText = errors.New("extracted text is empty")

// CalculateHashCommand fingerprints the cleaned text so a later run can
// tell whether the document's content actually changed.
type CalculateHashCommand struct {
	Logger hclog.Logger
}

func (c *CalculateHashCommand) Name() string {
	return "hash"
}

func (c *CalculateHashCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	if doc.Content == "" {
		return ErrNoText
	}

	doc.ContentHash = ContentHash(doc.Content)
	doc.ContentChanged = doc.ContentHash != doc.Document.ContentHash

	if c.Logger != nil {
		c.Logger.Debug("hashed content",
			"control_number", doc.ControlNumber(),
			"changed", doc.ContentChanged,
			"length", len(doc.Content),
		)
	}
	return nil
}

// ContentHash returns the hex SHA-256 of content with line endings unified
// and surrounding whitespace removed.
func ContentHash(content string) string {
	content = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(content)
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
