// Package local archives raw pages on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory archived pages are written under.
	BaseDir string
}

// BlobStore writes pages to the local filesystem. Paths are content
// addressed, so an existing file is left untouched.
type BlobStore struct {
	baseDir string
}

var _ board.BlobStore = (*BlobStore)(nil)

// New creates the base directory if needed and checks it is writable.
func New(cfg Config) (*BlobStore, error) {
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", baseDir)
	}

	probe, err := os.CreateTemp(baseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(baseDir)}, nil
}

// PutObject writes the page under path and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the archive directory", path)
	}
	uri := "file://" + fullPath

	if _, err := os.Stat(fullPath); err == nil {
		return uri, nil
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("write archived page: %w", err)
	}
	return uri, nil
}
