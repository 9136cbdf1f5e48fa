package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/browser"
	"github.com/JakeFAU/board-crawler/internal/config"
	pubsubpublisher "github.com/JakeFAU/board-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/board-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/board-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/board-crawler/internal/storage/memory"
	"github.com/JakeFAU/board-crawler/internal/storage/mongodb"
	"github.com/JakeFAU/board-crawler/internal/storage/postgres"
)

// postStore is the store handle shared by the consumer and the query side.
type postStore interface {
	board.Store
	board.Reader
}

func noop() {}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (postStore, func(), error) {
	switch cfg.Store.Driver {
	case "mongo":
		store, err := mongodb.Connect(ctx, mongodb.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open mongo store: %w", err)
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}, nil
	case "postgres":
		store, err := postgres.NewPostStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store.Close, nil
	case "memory":
		logger.Warn("using in-memory store, posts are lost on exit")
		return memorystorage.NewPostStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openArchive(ctx context.Context, cfg config.Config) (board.BlobStore, func(), error) {
	if !cfg.Archive.Enabled {
		return nil, noop, nil
	}
	switch cfg.Archive.Driver {
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	case "memory":
		return memorystorage.NewBlobStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
	}
}

func openPublisher(ctx context.Context, cfg config.Config) (board.Publisher, func(), error) {
	if cfg.Notify.TopicName == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client.Topic(cfg.Notify.TopicName))
	return publisher, func() {
		publisher.Stop()
		_ = client.Close()
	}, nil
}

func openSession(cfg config.Config, logger *zap.Logger) board.Session {
	bcfg := browser.Config{
		UserAgent:     cfg.Browser.UserAgent,
		ImplicitWait:  cfg.Browser.ImplicitWait,
		Headless:      cfg.Browser.Headless,
		RespectRobots: cfg.Browser.RespectRobot,
	}
	var session board.Session
	if cfg.Browser.Driver == "colly" {
		session = browser.NewColly(bcfg, logger)
	} else {
		session = browser.NewChromedp(bcfg, logger)
	}
	session.SetImplicitWait(cfg.Browser.ImplicitWait)
	return session
}
