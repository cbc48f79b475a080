// Package extraction turns stored document files into plain text.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrUnsupported is returned for file types an extractor cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// TextBearingTypes are the file types whose content can be extracted.
var TextBearingTypes = []string{
	"pdf", "doc", "docx", "odt", "rtf", "txt", "md", "csv", "html", "xlsx", "pptx",
}

// IsTextBearing reports whether fileType is one of TextBearingTypes.
func IsTextBearing(fileType string) bool {
	fileType = normalize(fileType)
	for _, t := range TextBearingTypes {
		if t == fileType {
			return true
		}
	}
	return false
}

// Result is the text extracted from one file.
type Result struct {
	Text      string
	PageCount int
}

// Extractor extracts text from file content.
type Extractor interface {
	// Supports reports whether fileType (an extension without the dot)
	// can be extracted.
	Supports(fileType string) bool

	// Extract reads r to the end and returns its text.
	Extract(ctx context.Context, r io.Reader, fileType string) (*Result, error)
}

// PlainText extracts text-native formats without an external service.
type PlainText struct{}

var plainTypes = map[string]bool{"txt": true, "md": true, "csv": true, "html": true, "htm": true}

// Supports implements Extractor.
func (PlainText) Supports(fileType string) bool {
	return plainTypes[normalize(fileType)]
}

// Extract implements Extractor.
func (p PlainText) Extract(ctx context.Context, r io.Reader, fileType string) (*Result, error) {
	ft := normalize(fileType)
	if !p.Supports(ft) {
		return nil, fmt.Errorf("%s: %w", fileType, ErrUnsupported)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}

	text := string(data)
	if ft == "html" || ft == "htm" {
		if text, err = htmlText(text); err != nil {
			return nil, err
		}
	}
	return &Result{Text: text, PageCount: 1}, nil
}

// htmlText returns the visible text of an HTML document.
func htmlText(s string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(b.String()), nil
			}
			return "", fmt.Errorf("failed to parse html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "p", "br", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// Chain tries each extractor that supports a file type, in order.
type Chain []Extractor

// Supports implements Extractor.
func (c Chain) Supports(fileType string) bool {
	for _, e := range c {
		if e.Supports(fileType) {
			return true
		}
	}
	return false
}

// Extract implements Extractor. The content is buffered so a failed
// extractor does not consume it for the next one.
func (c Chain) Extract(ctx context.Context, r io.Reader, fileType string) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var lastErr error
	for _, e := range c {
		if !e.Supports(fileType) {
			continue
		}
		res, err := e.Extract(ctx, bytes.NewReader(data), fileType)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w", fileType, ErrUnsupported)
	}
	return nil, lastErr
}

func normalize(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}
