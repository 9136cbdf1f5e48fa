// Package memory holds in-process stores for posts and raw pages.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// BlobStore keeps archived pages in memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ board.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject stores the page body under path.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = body
	return "memory://" + path, nil
}

// Object returns a copy of the stored body.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
