package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/clock"
	"github.com/JakeFAU/board-crawler/internal/queue/memory"
	storemem "github.com/JakeFAU/board-crawler/internal/storage/memory"
)

// flakyStore fails the first failures calls and then delegates.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	next     board.Store
}

func (f *flakyStore) Upsert(ctx context.Context, post board.Post) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("write concern timeout")
	}
	return f.next.Upsert(ctx, post)
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
}

func (r *recordingPublisher) Publish(_ context.Context, payload any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.payloads = append(r.payloads, payload.(map[string]any))
	return "msg-1", nil
}

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:      retries,
		RetryBackoff:    time.Millisecond,
		RetryBackoffMax: 2 * time.Millisecond,
		CommitTimeout:   time.Second,
	}
}

func timedPost(author string, minute int) board.Post {
	at := time.Date(2024, 12, 29, 21, minute, 0, 0, time.UTC)
	return board.Post{Author: author, Title: author, PostedAt: &at, URL: "https://x/" + author}
}

func fill(t *testing.T, posts ...board.Post) *memory.Queue {
	t.Helper()
	q := memory.NewQueue(len(posts) + 1)
	for _, p := range posts {
		require.NoError(t, q.Enqueue(context.Background(), p))
	}
	q.Close()
	return q
}

func TestRunDrainsClosedQueue(t *testing.T) {
	t.Parallel()

	store := storemem.NewPostStore()
	q := fill(t, timedPost("a", 1), timedPost("b", 2), timedPost("a", 1))
	c := New(q, store, nil, clock.System{}, fastConfig(0), nil)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 2, store.Len())
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	mem := storemem.NewPostStore()
	store := &flakyStore{failures: 2, next: mem}
	core, logs := observer.New(zap.InfoLevel)
	c := New(fill(t, timedPost("a", 1)), store, nil, clock.System{}, fastConfig(3), zap.New(core))

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 3, store.calls)
	require.Equal(t, 1, mem.Len())
	require.Equal(t, 2, logs.FilterMessage("store write failed, retrying").Len())

	committed := logs.FilterMessage("post committed").All()
	require.Len(t, committed, 1)
	require.Equal(t, "success", committed[0].ContextMap()["outcome"])
}

func TestRunDropsAfterRetriesExhausted(t *testing.T) {
	t.Parallel()

	mem := storemem.NewPostStore()
	store := &flakyStore{failures: 10, next: mem}
	core, logs := observer.New(zap.InfoLevel)
	c := New(fill(t, timedPost("a", 1), timedPost("b", 2)), store, nil, clock.System{}, fastConfig(2), zap.New(core))

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 6, store.calls)
	require.Zero(t, mem.Len())

	dropped := logs.FilterMessage("store write failed, dropping post").All()
	require.Len(t, dropped, 2)
	require.Equal(t, "a", dropped[0].ContextMap()["author"])
	require.Equal(t, int64(3), dropped[0].ContextMap()["attempts"])
}

func TestRunPublishesNotifications(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	post := timedPost("a", 1)
	post.CrawlID = "crawl-1"
	post.Outcome = board.OutcomeValid
	c := New(fill(t, post), storemem.NewPostStore(), pub, clock.NewFixed(now), fastConfig(0), nil)

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, pub.payloads, 1)
	payload := pub.payloads[0]
	require.Equal(t, "a", payload["author"])
	require.Equal(t, "crawl-1", payload["crawl_id"])
	require.Equal(t, "valid", payload["outcome"])
	require.Equal(t, "2024-12-29T21:01:00Z", payload["posted_at"])
	require.Equal(t, "2025-01-01T00:00:00Z", payload["timestamp"])
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := storemem.NewPostStore()
	pub := &recordingPublisher{err: errors.New("topic not found")}
	c := New(fill(t, timedPost("a", 1)), store, pub, clock.System{}, fastConfig(0), nil)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 1, store.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	c := New(q, storemem.NewPostStore(), nil, clock.System{}, fastConfig(0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(2, 100*time.Millisecond, 300*time.Millisecond)
	boom := errors.New("boom")
	require.True(t, p.ShouldRetry(boom, 0))
	require.True(t, p.ShouldRetry(boom, 1))
	require.False(t, p.ShouldRetry(boom, 2))
	require.False(t, p.ShouldRetry(nil, 0))
	require.False(t, p.ShouldRetry(context.Canceled, 0))
	require.True(t, p.ShouldRetry(context.DeadlineExceeded, 0))

	for attempt, limit := range []time.Duration{100, 200, 300, 300} {
		limit *= time.Millisecond
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, limit/2)
		require.LessOrEqual(t, d, limit)
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(-1, 0, 0)
	require.Zero(t, p.maxRetries)
	require.Equal(t, 200*time.Millisecond, p.baseDelay)
	require.Equal(t, p.baseDelay, p.maxDelay)
}
