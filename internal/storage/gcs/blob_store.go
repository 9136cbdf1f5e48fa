// Package gcs archives raw pages in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore writes pages to a bucket. Object names are content addressed,
// so uploads are conditional on the object not existing yet.
type BlobStore struct {
	client *storage.Client
	bucket string
}

var _ board.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// PutObject uploads the page and returns a gs:// URI. An object that already
// exists counts as archived.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, path)
	obj := s.client.Bucket(s.bucket).Object(path).If(storage.Conditions{DoesNotExist: true})

	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			return uri, nil
		}
		return "", fmt.Errorf("close writer: %w", err)
	}
	return uri, nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
