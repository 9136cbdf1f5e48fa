package board

import "errors"

var (
	// ErrControlMissing means the older-page control is absent from a
	// listing page: the page structure changed or the history is exhausted.
	ErrControlMissing = errors.New("pagination control missing")
	// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrNotFound is returned by lookups that match no stored post.
	ErrNotFound = errors.New("post not found")
	// ErrSessionClosed is returned by a session used after Close.
	ErrSessionClosed = errors.New("session closed")
)
