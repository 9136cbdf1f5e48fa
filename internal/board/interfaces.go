package board

import (
	"context"
	"io"
	"time"
)

// Session is a stateful browser session. Navigating to a new page replaces
// the current document, so callers that need the previous page must call
// Back.
type Session interface {
	Navigate(ctx context.Context, url string) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Back(ctx context.Context) error
	FindAll(ctx context.Context, selector string) ([]Element, error)
	FindByText(ctx context.Context, tag, class, text string) (Element, bool, error)
	SetImplicitWait(d time.Duration)
	Close() error
}

// Queue hands posts from the producer to the consumer.
type Queue interface {
	Enqueue(ctx context.Context, post Post) error
	Dequeue(ctx context.Context) (Post, error)
	Close()
}

// Store commits posts idempotently keyed by their Identity.
type Store interface {
	Upsert(ctx context.Context, post Post) error
}

// Reader serves read-only queries against stored posts.
type Reader interface {
	SampleTitles(ctx context.Context, n int) ([]string, error)
	FindByTitle(ctx context.Context, title string) (PostView, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes commit notifications.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
