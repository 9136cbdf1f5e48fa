// Package memory provides the in-process ingest queue between the crawl
// producer and the persistence consumer.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Queue is a bounded in-memory queue of posts with context-aware operations.
// Enqueue blocks while the queue is full; Dequeue blocks while it is empty.
type Queue struct {
	ch      chan board.Post
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan board.Post, capacity),
	}
}

// Enqueue pushes a post into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, post board.Post) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue: %w", board.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- post:
		return nil
	}
}

// Dequeue pops the next post, respecting context cancellation. Posts buffered
// before Close are still delivered; once drained Dequeue returns
// board.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (board.Post, error) {
	select {
	case <-ctx.Done():
		return board.Post{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case post, ok := <-q.ch:
		if !ok {
			return board.Post{}, board.ErrQueueClosed
		}
		return post, nil
	}
}

// Len reports how many posts are buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. Safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
