// Package producer walks a board and turns every listed post into a queued
// board.Post.
package producer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/extract"
	"github.com/JakeFAU/board-crawler/internal/logging"
	"github.com/JakeFAU/board-crawler/internal/metrics"
	"github.com/JakeFAU/board-crawler/internal/telemetry"
	"github.com/JakeFAU/board-crawler/internal/walker"
)

const archiveContentType = "text/html; charset=utf-8"

// Config controls pacing and archiving.
type Config struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	MaxRPS       float64
	FetchTimeout time.Duration
	// ArchivePrefix is the blob path prefix for raw pages.
	ArchivePrefix string
	// CrawlID tags every post produced by this run.
	CrawlID string
}

// Producer owns the browser session for the lifetime of a crawl.
type Producer struct {
	walker    *walker.Walker
	session   board.Session
	extractor *extract.Extractor
	queue     board.Queue
	archive   board.BlobStore
	cfg       Config
	limiter   *rate.Limiter
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New constructs a Producer. archive may be nil.
func New(
	w *walker.Walker,
	session board.Session,
	extractor *extract.Extractor,
	queue board.Queue,
	archive board.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	return &Producer{
		walker:    w,
		session:   session,
		extractor: extractor,
		queue:     queue,
		archive:   archive,
		cfg:       cfg,
		limiter:   limiter,
		tracer:    telemetry.Tracer("producer"),
		logger:    logger.Named("producer"),
	}
}

// Run crawls until the walk ends, fails or ctx is canceled. The queue and the
// session are closed on every exit path so the consumer can drain.
func (p *Producer) Run(ctx context.Context) error {
	defer p.queue.Close()
	defer func() {
		if err := p.session.Close(); err != nil {
			p.logger.Warn("session close failed", zap.Error(err))
		}
	}()

	p.logger.Info("crawl started", zap.String("crawl_id", p.cfg.CrawlID))
	err := p.walker.Walk(ctx, p.visit)
	switch {
	case err == nil:
		logging.Success(p.logger, "crawl finished", zap.String("crawl_id", p.cfg.CrawlID))
		return nil
	case errors.Is(err, board.ErrControlMissing):
		p.logger.Error("pagination control missing, stopping crawl", zap.Error(err))
	case ctx.Err() != nil:
		p.logger.Info("crawl canceled", zap.Error(err))
	default:
		p.logger.Error("crawl failed", zap.Error(err))
	}
	return err
}

func (p *Producer) visit(ctx context.Context, listing board.Listing) error {
	for _, candidate := range listing.Candidates {
		if err := p.process(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}

// process handles one candidate. Only cancellation and queue failures are
// returned; fetch failures skip the candidate.
func (p *Producer) process(ctx context.Context, candidate board.Candidate) error {
	ctx, span := p.tracer.Start(ctx, "producer.process",
		trace.WithAttributes(attribute.String("post.url", candidate.URL)))
	defer span.End()

	html, err := p.fetch(ctx, candidate.URL)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch post: %w", ctx.Err())
		}
		span.SetStatus(codes.Error, "fetch failed")
		metrics.ObserveFetchFailure()
		p.logger.Warn("post fetch failed, skipping", zap.String("url", candidate.URL), zap.Error(err))
		return p.throttle(ctx)
	}

	res := p.extractor.Extract(html, candidate.URL, candidate.Title)
	post := res.Post
	post.CrawlID = p.cfg.CrawlID
	p.logDiagnostics(candidate.URL, res)
	p.archivePage(ctx, post.Board, html)
	metrics.ObservePost(string(post.Outcome), res.DroppedComments)
	span.SetAttributes(attribute.String("post.outcome", string(post.Outcome)))

	if err := p.queue.Enqueue(ctx, post); err != nil {
		return fmt.Errorf("enqueue post %s: %w", candidate.URL, err)
	}
	p.observeDepth()
	logging.Success(p.logger, "article enqueued",
		zap.String("url", candidate.URL),
		zap.String("title", candidate.Title),
		zap.String("post_outcome", string(post.Outcome)),
		zap.String("trace_id", telemetry.TraceID(ctx)),
	)

	if err := p.throttle(ctx); err != nil {
		return err
	}
	if err := p.session.Back(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigate back: %w", ctx.Err())
		}
		p.logger.Warn("navigate back failed", zap.String("url", candidate.URL), zap.Error(err))
	}
	return nil
}

func (p *Producer) fetch(ctx context.Context, url string) (string, error) {
	fetchCtx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}
	html, err := p.session.Navigate(fetchCtx, url)
	if err != nil {
		return "", fmt.Errorf("navigate to post: %w", err)
	}
	return html, nil
}

// throttle sleeps a uniform random delay in [MinDelay, MaxDelay] and then
// waits on the rate ceiling when one is configured.
func (p *Producer) throttle(ctx context.Context) error {
	delay := p.cfg.MinDelay
	if span := p.cfg.MaxDelay - p.cfg.MinDelay; span > 0 {
		delay += rand.N(span + 1)
	}
	metrics.ObserveThrottleDelay(delay)
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("throttle canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}

func (p *Producer) logDiagnostics(url string, res extract.Result) {
	for _, d := range res.Diagnostics {
		fields := []zap.Field{
			zap.String("url", url),
			zap.String("kind", string(d.Kind)),
			zap.String("detail", d.Detail),
		}
		if d.Kind == extract.MalformedCommentBlock {
			p.logger.Debug("comment block skipped", fields...)
			continue
		}
		p.logger.Warn("post structure anomaly", fields...)
	}
}

func (p *Producer) archivePage(ctx context.Context, boardName, html string) {
	if p.archive == nil {
		return
	}
	path := p.buildBlobPath(boardName, html)
	uri, err := p.archive.PutObject(ctx, path, archiveContentType, strings.NewReader(html))
	if err != nil {
		p.logger.Warn("archive raw page failed", zap.String("path", path), zap.Error(err))
		return
	}
	p.logger.Debug("raw page archived", zap.String("uri", uri))
}

func (p *Producer) buildBlobPath(boardName, html string) string {
	sum := sha256.Sum256([]byte(html))
	hash := hex.EncodeToString(sum[:])
	if boardName == "" {
		boardName = "unknown"
	}
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", boardName, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, boardName, hash)
}

func (p *Producer) observeDepth() {
	if q, ok := p.queue.(interface{ Len() int }); ok {
		metrics.SetQueueDepth(q.Len())
	}
}
