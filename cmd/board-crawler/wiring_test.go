package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/browser"
	"github.com/JakeFAU/board-crawler/internal/config"
	localstorage "github.com/JakeFAU/board-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/board-crawler/internal/storage/memory"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestDefaultLocationLoads(t *testing.T) {
	t.Parallel()

	loc, err := defaultConfig(t).Location()
	require.NoError(t, err)
	require.Equal(t, "Asia/Taipei", loc.String())
}

func TestOpenStoreMemory(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Store.Driver = "memory"
	store, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &memorystorage.PostStore{}, store)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Store.Driver = "redis"
	_, _, err := openStore(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestOpenArchive(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	archive, closeArchive, err := openArchive(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, archive)
	closeArchive()

	cfg.Archive.Enabled = true
	cfg.Archive.BaseDir = t.TempDir()
	archive, closeArchive, err = openArchive(context.Background(), cfg)
	require.NoError(t, err)
	defer closeArchive()
	require.IsType(t, &localstorage.BlobStore{}, archive)

	cfg.Archive.Driver = "s3"
	_, _, err = openArchive(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown archive driver")
}

func TestOpenPublisherDisabled(t *testing.T) {
	t.Parallel()

	publisher, closePublisher, err := openPublisher(context.Background(), defaultConfig(t))
	require.NoError(t, err)
	require.Nil(t, publisher)
	closePublisher()
}

func TestOpenSessionSelectsDriver(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Browser.Driver = "colly"
	session := openSession(cfg, zap.NewNop())
	defer session.Close()
	require.IsType(t, &browser.Colly{}, session)
}

func TestWalkerConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	wc := walkerConfig(cfg)
	require.Equal(t, cfg.Board.IndexURL, wc.IndexURL)
	require.Equal(t, "‹ 上頁", wc.OlderText)
	require.Equal(t, 1000, wc.MaxPages)
}
