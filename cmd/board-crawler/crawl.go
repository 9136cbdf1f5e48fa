package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/api"
	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/clock"
	"github.com/JakeFAU/board-crawler/internal/config"
	"github.com/JakeFAU/board-crawler/internal/consumer"
	"github.com/JakeFAU/board-crawler/internal/extract"
	"github.com/JakeFAU/board-crawler/internal/metrics"
	"github.com/JakeFAU/board-crawler/internal/pipeline"
	"github.com/JakeFAU/board-crawler/internal/producer"
	"github.com/JakeFAU/board-crawler/internal/query"
	queuememory "github.com/JakeFAU/board-crawler/internal/queue/memory"
	"github.com/JakeFAU/board-crawler/internal/telemetry"
	"github.com/JakeFAU/board-crawler/internal/walker"
)

func runCrawl(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	tp, err := telemetry.InitTracerProvider(ctx, appName, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()
	metrics.Init()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	crawlID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate crawl id: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	publisher, closePublisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	session := openSession(cfg, logger)
	clk := clock.System{}
	queue := queuememory.NewQueue(cfg.Queue.Capacity)

	prod := producer.New(
		walker.New(walkerConfig(cfg), session, logger),
		session,
		extract.New(extract.Config{
			YearPolicy: cfg.Extract.CommentYear,
			FixedYear:  cfg.Extract.FixedYear,
			Location:   loc,
		}, clk),
		queue,
		archive,
		producer.Config{
			MinDelay:      cfg.Crawl.MinDelay,
			MaxDelay:      cfg.Crawl.MaxDelay,
			MaxRPS:        cfg.Crawl.MaxRPS,
			FetchTimeout:  cfg.Crawl.FetchTimeout,
			ArchivePrefix: cfg.Archive.Prefix,
			CrawlID:       crawlID.String(),
		},
		logger,
	)
	cons := consumer.New(queue, store, publisher, clk, consumer.Config{
		MaxRetries:      cfg.Store.MaxRetries,
		RetryBackoff:    cfg.Store.RetryBackoff,
		RetryBackoffMax: cfg.Store.RetryBackoffMax,
		CommitTimeout:   cfg.Store.CommitTimeout,
	}, logger)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverDone := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := api.NewServer(query.New(store, logger), logger)
		go func() {
			serverDone <- srv.ListenAndServe(serverCtx, fmt.Sprintf(":%d", cfg.Server.Port))
		}()
	} else {
		close(serverDone)
	}

	crawlErr := pipeline.Run(ctx, prod, cons, logger)
	if crawlErr != nil && !errors.Is(crawlErr, board.ErrControlMissing) && ctx.Err() == nil {
		logger.Error("crawl aborted", zap.Error(crawlErr))
	}

	if cfg.Server.Enabled && c.Bool("serve") && ctx.Err() == nil {
		logger.Info("crawl done, serving queries until interrupted")
		<-ctx.Done()
	}
	stopServer()
	if err := <-serverDone; err != nil {
		logger.Error("query server failed", zap.Error(err))
	}

	if ctx.Err() != nil {
		logger.Info("shutdown complete")
		return nil
	}
	return crawlErr
}

func walkerConfig(cfg config.Config) walker.Config {
	return walker.Config{
		IndexURL:     cfg.Board.IndexURL,
		LinkSelector: cfg.Board.LinkSelector,
		OlderTag:     cfg.Board.OlderTag,
		OlderClass:   cfg.Board.OlderClass,
		OlderText:    cfg.Board.OlderText,
		MaxPages:     cfg.Crawl.MaxPages,
	}
}
