package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/JakeFAU/board-crawler/internal/menu"
	"github.com/JakeFAU/board-crawler/internal/query"
)

func runMenu(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	return menu.New(query.New(store, logger), loc, logger).Run(ctx, os.Stdin, os.Stdout)
}
