// Package local stores document files on a filesystem rooted at a
// directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/doccontrol/pkg/storage"
)

// Storage is a storage.FileStorage backed by an afero filesystem.
type Storage struct {
	fs     afero.Fs
	logger hclog.Logger
}

// Option is a functional option for creating a Storage.
type Option func(*Storage)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Storage over fs. References are paths relative to the root
// of fs.
func New(fs afero.Fs, opts ...Option) *Storage {
	s := &Storage{
		fs:     fs,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("local-storage")
	return s
}

// NewDir creates a Storage rooted at dir on the operating system
// filesystem, creating dir when missing.
func NewDir(dir string, opts ...Option) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return New(afero.NewBasePathFs(osFs, dir), opts...), nil
}

// Name implements storage.FileStorage.
func (s *Storage) Name() string {
	return "local"
}

// Open implements storage.FileStorage.
func (s *Storage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		return nil, mapErr(ref, err)
	}
	return f, nil
}

// Put implements storage.FileStorage.
func (s *Storage) Put(ctx context.Context, ref string, r io.Reader, contentType string) error {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return err
	}
	if dir := path.Dir(key); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := s.fs.Create(key)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.logger.Debug("stored file", "ref", key, "bytes", n)
	return nil
}

// Stat implements storage.FileStorage.
func (s *Storage) Stat(ctx context.Context, ref string) (*storage.FileInfo, error) {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return nil, err
	}
	fi, err := s.fs.Stat(key)
	if err != nil {
		return nil, mapErr(ref, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", ref, storage.ErrInvalidRef)
	}
	return &storage.FileInfo{
		Ref:         key,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		ContentType: mime.TypeByExtension(path.Ext(key)),
	}, nil
}

// Delete implements storage.FileStorage.
func (s *Storage) Delete(ctx context.Context, ref string) error {
	key, err := storage.CleanRef(ref)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func mapErr(ref string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", ref, storage.ErrNotFound)
	}
	return err
}
