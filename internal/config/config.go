// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Comment year policies accepted by extract.comment_year.
const (
	YearFromPost  = "post"
	YearFromCrawl = "crawl"
	YearFixed     = "fixed"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Board   BoardConfig   `mapstructure:"board"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Browser BrowserConfig `mapstructure:"browser"`
	Extract ExtractConfig `mapstructure:"extract"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Store   StoreConfig   `mapstructure:"store"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BoardConfig identifies the board and the markers used to walk it.
type BoardConfig struct {
	IndexURL     string `mapstructure:"index_url"`
	OlderText    string `mapstructure:"older_text"`
	OlderTag     string `mapstructure:"older_tag"`
	OlderClass   string `mapstructure:"older_class"`
	LinkSelector string `mapstructure:"link_selector"`
}

// CrawlConfig governs the producer.
type CrawlConfig struct {
	MaxPages     int           `mapstructure:"max_pages"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxRPS       float64       `mapstructure:"max_rps"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// BrowserConfig selects and tunes the browser session.
type BrowserConfig struct {
	Driver       string        `mapstructure:"driver"`
	UserAgent    string        `mapstructure:"user_agent"`
	ImplicitWait time.Duration `mapstructure:"implicit_wait"`
	Headless     bool          `mapstructure:"headless"`
	RespectRobot bool          `mapstructure:"respect_robots"`
}

// ExtractConfig controls how comment timestamps receive a year.
type ExtractConfig struct {
	CommentYear string `mapstructure:"comment_year"`
	FixedYear   int    `mapstructure:"fixed_year"`
	Location    string `mapstructure:"location"`
}

// QueueConfig sizes the ingest queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// StoreConfig selects the store backend and its retry budget.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`
	CommitTimeout   time.Duration `mapstructure:"commit_timeout"`
}

// MongoConfig locates the document store.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig configures the optional raw-page archive.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for commit notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the query HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("board.index_url", "https://www.ptt.cc/bbs/movie/index.html")
	v.SetDefault("board.older_text", "‹ 上頁")
	v.SetDefault("board.older_tag", "a")
	v.SetDefault("board.older_class", "btn wide")
	v.SetDefault("board.link_selector", ".title a")
	v.SetDefault("crawl.max_pages", 1000)
	v.SetDefault("crawl.min_delay", time.Millisecond)
	v.SetDefault("crawl.max_delay", 20*time.Millisecond)
	v.SetDefault("crawl.max_rps", 0)
	v.SetDefault("crawl.fetch_timeout", 30*time.Second)
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.user_agent", "board-crawler/0.1")
	v.SetDefault("browser.implicit_wait", 10*time.Second)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.respect_robots", false)
	v.SetDefault("extract.comment_year", YearFromPost)
	v.SetDefault("extract.location", "Asia/Taipei")
	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.max_retries", 3)
	v.SetDefault("store.retry_backoff", 200*time.Millisecond)
	v.SetDefault("store.retry_backoff_max", 5*time.Second)
	v.SetDefault("store.commit_timeout", 10*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/")
	v.SetDefault("mongo.database", "ptt")
	v.SetDefault("mongo.collection", "movies_by_threads")
	v.SetDefault("db.table", "posts")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.base_dir", "./archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Board.IndexURL == "" {
		return fmt.Errorf("board.index_url must be set")
	}
	if c.Board.LinkSelector == "" {
		return fmt.Errorf("board.link_selector must be set")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if c.Crawl.MinDelay < 0 || c.Crawl.MaxDelay < c.Crawl.MinDelay {
		return fmt.Errorf("crawl.min_delay must be >= 0 and <= crawl.max_delay")
	}
	if c.Crawl.MaxRPS < 0 {
		return fmt.Errorf("crawl.max_rps must be >= 0")
	}
	switch c.Browser.Driver {
	case "chromedp", "colly":
	default:
		return fmt.Errorf("browser.driver must be chromedp or colly, got %q", c.Browser.Driver)
	}
	switch c.Extract.CommentYear {
	case YearFromPost, YearFromCrawl:
	case YearFixed:
		if c.Extract.FixedYear <= 0 {
			return fmt.Errorf("extract.fixed_year must be > 0 when extract.comment_year is fixed")
		}
	default:
		return fmt.Errorf("extract.comment_year must be post, crawl or fixed, got %q", c.Extract.CommentYear)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return fmt.Errorf("mongo.uri, mongo.database and mongo.collection must be set")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.driver is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be mongo, postgres or memory, got %q", c.Store.Driver)
	}
	if c.Store.MaxRetries < 0 {
		return fmt.Errorf("store.max_retries must be >= 0")
	}
	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "local":
			if c.Archive.BaseDir == "" {
				return fmt.Errorf("archive.base_dir must be set for the local archive")
			}
		case "gcs":
			if c.Archive.GCSBucket == "" {
				return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
			}
		case "memory":
		default:
			return fmt.Errorf("archive.driver must be local, gcs or memory, got %q", c.Archive.Driver)
		}
	}
	if c.Notify.TopicName != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic_name is set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Location resolves extract.location, defaulting to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Extract.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Extract.Location)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", c.Extract.Location, err)
	}
	return loc, nil
}
