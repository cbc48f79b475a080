package indexer

import (
	"time"

	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// DocumentContext carries one controlled document through the reindex
// pipeline. Each step reads what earlier steps produced and adds its own
// result.
type DocumentContext struct {
	Document *models.Document

	// Set by the download step.
	FileType string
	Data     []byte

	// Set by extraction and cleaning. Data is released once Content is set.
	Content   string
	PageCount int

	Tags            []string
	CrossReferences []string

	// ContentHash is the hash of the normalized content; ContentChanged
	// reports whether it differs from the stored hash.
	ContentHash    string
	ContentChanged bool

	Indexed bool

	StartTime time.Time
}

// NewDocumentContext wraps doc for processing.
func NewDocumentContext(doc *models.Document) *DocumentContext {
	return &DocumentContext{
		Document:  doc,
		StartTime: time.Now(),
	}
}

// ControlNumber returns the document's control number, or "" before the
// document is loaded.
func (dc *DocumentContext) ControlNumber() string {
	if dc.Document == nil {
		return ""
	}
	return dc.Document.ControlNumber
}
