package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/config"
	"github.com/JakeFAU/board-crawler/internal/logging"
)

const appName = "board-crawler"

var version = "dev"

func main() {
	app := &cli.App{
		Name:    appName,
		Usage:   "crawl a PTT board into a document store and query it",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CRAWLER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "crawl",
				Usage: "walk the board, extract posts and commit them",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "serve",
						Usage: "keep the query API running after the crawl ends",
					},
				},
				Action: runCrawl,
			},
			{
				Name:   "menu",
				Usage:  "browse stored posts interactively",
				Action: runMenu,
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every
// command.
func bootstrap(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
	}
}
