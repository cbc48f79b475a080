// Package storage defines where controlled-document files live. A document's
// file_ref is an opaque reference understood by the configured backend.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a reference names no stored file.
var ErrNotFound = errors.New("file not found")

// ErrInvalidRef is returned for empty references or ones escaping the
// storage root.
var ErrInvalidRef = errors.New("invalid file reference")

// FileInfo describes a stored file.
type FileInfo struct {
	Ref         string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// FileStorage reads and writes document files.
type FileStorage interface {
	// Name returns the backend name.
	Name() string

	// Open returns the file's content. Callers must close it.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Put stores content under ref, replacing any existing file.
	Put(ctx context.Context, ref string, r io.Reader, contentType string) error

	// Stat returns file metadata.
	Stat(ctx context.Context, ref string) (*FileInfo, error)

	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, ref string) error
}

// CleanRef normalizes ref to a slash-separated relative key.
func CleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" {
		return "", ErrInvalidRef
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+ref), "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidRef
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", ErrInvalidRef
		}
	}
	return cleaned, nil
}

// Ext returns the lower-case extension of ref without the dot.
func Ext(ref string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(ref)), ".")
}

// ReadAll opens ref and reads it to the end, reading at most limit bytes
// when limit > 0.
func ReadAll(ctx context.Context, fs FileStorage, ref string, limit int64) ([]byte, error) {
	rc, err := fs.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit)
	}
	return io.ReadAll(r)
}
