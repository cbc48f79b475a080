package commands

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"

	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// CleanTextCommand removes emoji and control characters from extracted
// text and collapses runs of whitespace.
type CleanTextCommand struct{}

// Name returns the command name.
func (c *CleanTextCommand) Name() string {
	return "clean-text"
}

// Execute cleans the document content.
func (c *CleanTextCommand) Execute(ctx context.Context, doc *indexer.DocumentContext) error {
	doc.Content = CleanText(doc.Content)
	return nil
}

// CleanText returns s without emoji or control characters, with line
// endings normalized, horizontal whitespace collapsed to one space and at
// most one blank line between paragraphs.
func CleanText(s string) string {
	s = gomoji.RemoveEmojis(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\ufeff' || r == '\u200b' {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
