// Package query serves read-only lookups over stored posts for the HTTP API
// and the interactive menu.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
)

const (
	// DefaultSampleSize is the number of titles listed when none is requested.
	DefaultSampleSize = 15
	// MaxSampleSize caps a single sample request.
	MaxSampleSize = 100
)

// ErrEmptyTitle is returned when a lookup is made without a title.
var ErrEmptyTitle = errors.New("title must not be empty")

// Service answers sample and lookup queries.
type Service struct {
	reader board.Reader
	logger *zap.Logger
}

// New constructs a Service over reader.
func New(reader board.Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: reader, logger: logger.Named("query")}
}

// SampleTitles returns up to n randomly chosen titles. Non-positive n falls
// back to DefaultSampleSize; n is capped at MaxSampleSize.
func (s *Service) SampleTitles(ctx context.Context, n int) ([]string, error) {
	switch {
	case n <= 0:
		n = DefaultSampleSize
	case n > MaxSampleSize:
		n = MaxSampleSize
	}
	titles, err := s.reader.SampleTitles(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("sample titles: %w", err)
	}
	s.logger.Debug("sampled titles", zap.Int("requested", n), zap.Int("returned", len(titles)))
	return titles, nil
}

// FindByTitle returns the post whose title matches exactly after trimming.
// board.ErrNotFound is preserved in the returned error chain.
func (s *Service) FindByTitle(ctx context.Context, title string) (board.PostView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return board.PostView{}, ErrEmptyTitle
	}
	view, err := s.reader.FindByTitle(ctx, title)
	if err != nil {
		return board.PostView{}, fmt.Errorf("find %q: %w", title, err)
	}
	if view.Comments == nil {
		view.Comments = []board.Comment{}
	}
	return view, nil
}
