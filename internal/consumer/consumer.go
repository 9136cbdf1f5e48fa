// Package consumer drains the ingest queue into the document store.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/logging"
	"github.com/JakeFAU/board-crawler/internal/metrics"
	"github.com/JakeFAU/board-crawler/internal/telemetry"
)

// Commit statuses recorded in metrics.
const (
	StatusCommitted = "committed"
	StatusDropped   = "dropped"
)

// Config controls commit retries.
type Config struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	// CommitTimeout bounds a single Upsert attempt.
	CommitTimeout time.Duration
}

// Consumer commits dequeued posts one at a time.
type Consumer struct {
	queue     board.Queue
	store     board.Store
	publisher board.Publisher
	clock     board.Clock
	retry     *RetryPolicy
	cfg       Config
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New constructs a Consumer. publisher may be nil.
func New(
	queue board.Queue,
	store board.Store,
	publisher board.Publisher,
	clock board.Clock,
	cfg Config,
	logger *zap.Logger,
) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		queue:     queue,
		store:     store,
		publisher: publisher,
		clock:     clock,
		retry:     NewRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax),
		cfg:       cfg,
		tracer:    telemetry.Tracer("consumer"),
		logger:    logger.Named("consumer"),
	}
}

// Run blocks on the queue until it is closed and drained (nil) or ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		post, err := c.queue.Dequeue(ctx)
		if errors.Is(err, board.ErrQueueClosed) {
			c.logger.Info("queue drained, consumer exiting")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("consumer stopped: %w", ctx.Err())
			}
			c.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if q, ok := c.queue.(interface{ Len() int }); ok {
			metrics.SetQueueDepth(q.Len())
		}
		c.commit(ctx, post)
	}
}

// commit writes one post, retrying transient failures. Exhausted posts are
// logged and dropped.
func (c *Consumer) commit(ctx context.Context, post board.Post) {
	ctx, span := c.tracer.Start(ctx, "consumer.commit")
	defer span.End()

	fields := append(identityFields(post), zap.String("trace_id", telemetry.TraceID(ctx)))
	for attempt := 0; ; attempt++ {
		err := c.upsert(ctx, post)
		if err == nil {
			metrics.ObserveCommit(StatusCommitted)
			logging.Success(c.logger, "post committed", fields...)
			c.notify(ctx, post)
			return
		}
		if !c.retry.ShouldRetry(err, attempt) {
			span.SetStatus(codes.Error, "store write dropped")
			metrics.ObserveCommit(StatusDropped)
			c.logger.Error("store write failed, dropping post",
				append(fields, zap.Int("attempts", attempt+1), zap.Error(err))...)
			return
		}
		metrics.ObserveCommitRetry()
		backoff := c.retry.Backoff(attempt)
		c.logger.Warn("store write failed, retrying",
			append(fields, zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))...)
		if err := sleepWithContext(ctx, backoff); err != nil {
			span.SetStatus(codes.Error, "store write abandoned")
			metrics.ObserveCommit(StatusDropped)
			c.logger.Error("store write abandoned", append(fields, zap.Error(err))...)
			return
		}
	}
}

// upsert runs one attempt. A dequeued post is finished even while ctx is
// being canceled; CommitTimeout still bounds it.
func (c *Consumer) upsert(ctx context.Context, post board.Post) error {
	commitCtx := context.WithoutCancel(ctx)
	if c.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(commitCtx, c.cfg.CommitTimeout)
		defer cancel()
	}
	if err := c.store.Upsert(commitCtx, post); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

func (c *Consumer) notify(ctx context.Context, post board.Post) {
	if c.publisher == nil {
		return
	}
	payload := map[string]any{
		"author":      post.Author,
		"title":       post.Title,
		"url":         post.URL,
		"board":       post.Board,
		"body_sha256": post.BodyHash,
		"crawl_id":    post.CrawlID,
		"outcome":     string(post.Outcome),
		"comments":    len(post.Comments),
		"timestamp":   c.clock.Now().Format(time.RFC3339),
	}
	if post.PostedAt != nil {
		payload["posted_at"] = post.PostedAt.Format(time.RFC3339)
	}
	id, err := c.publisher.Publish(ctx, payload)
	if err != nil {
		c.logger.Warn("commit notification failed", zap.String("url", post.URL), zap.Error(err))
		return
	}
	c.logger.Debug("commit notification published", zap.String("message_id", id))
}

func identityFields(post board.Post) []zap.Field {
	id := post.Identity()
	fields := []zap.Field{zap.String("author", id.Author), zap.String("url", post.URL)}
	if id.PostedAt != nil {
		fields = append(fields, zap.Time("posted_at", *id.PostedAt))
	}
	return fields
}
