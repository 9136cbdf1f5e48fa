// Package postgres persists posts in a Postgres table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/board-crawler/internal/board"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "posts"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostStore implements board.Store and board.Reader over a single table.
// Identity is enforced by two partial unique indexes: (author, posted_at) for
// timestamped posts and url for the rest.
type PostStore struct {
	pool  pgxPool
	table string
}

var (
	_ board.Store  = (*PostStore)(nil)
	_ board.Reader = (*PostStore)(nil)
)

// NewPostStore connects a pool and ensures the schema exists.
func NewPostStore(ctx context.Context, cfg Config) (*PostStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPostStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostStoreWithPool(pool pgxPool, table string) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table and its indexes when missing.
func (s *PostStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	author TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	posted_at TIMESTAMPTZ,
	body TEXT NOT NULL,
	comments JSONB NOT NULL DEFAULT '[]'::jsonb,
	url TEXT NOT NULL,
	board TEXT NOT NULL DEFAULT '',
	body_sha256 TEXT NOT NULL,
	crawl_id TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_author_posted_at ON %[1]s (author, posted_at) WHERE posted_at IS NOT NULL`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_url_untimed ON %[1]s (url) WHERE posted_at IS NULL`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_title ON %[1]s (title)`, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts the post or overwrites every column of the row with the
// same identity.
func (s *PostStore) Upsert(ctx context.Context, post board.Post) error {
	comments := post.Comments
	if comments == nil {
		comments = []board.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}

	conflict := "(author, posted_at) WHERE posted_at IS NOT NULL"
	if post.Identity().ByURL() {
		conflict = "(url) WHERE posted_at IS NULL"
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	author,
	title,
	posted_at,
	body,
	comments,
	url,
	board,
	body_sha256,
	crawl_id,
	outcome,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT %s DO UPDATE SET
	author = EXCLUDED.author,
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	comments = EXCLUDED.comments,
	url = EXCLUDED.url,
	board = EXCLUDED.board,
	body_sha256 = EXCLUDED.body_sha256,
	crawl_id = EXCLUDED.crawl_id,
	outcome = EXCLUDED.outcome,
	scraped_at = EXCLUDED.scraped_at`, s.table, conflict)

	args := []any{
		post.Author,
		post.Title,
		post.PostedAt,
		post.Body,
		commentsJSON,
		post.URL,
		post.Board,
		post.BodyHash,
		post.CrawlID,
		string(post.Outcome),
		post.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// SampleTitles returns up to n titles in random order.
func (s *PostStore) SampleTitles(ctx context.Context, n int) ([]string, error) {
	query := fmt.Sprintf(`SELECT title FROM %s ORDER BY random() LIMIT $1`, s.table)
	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("sample titles: %w", err)
	}
	titles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan titles: %w", err)
	}
	return titles, nil
}

// FindByTitle returns the oldest stored row whose title matches exactly.
func (s *PostStore) FindByTitle(ctx context.Context, title string) (board.PostView, error) {
	query := fmt.Sprintf(`SELECT title, body, comments FROM %s WHERE title = $1 ORDER BY id LIMIT 1`, s.table)
	var (
		view         board.PostView
		commentsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, title).Scan(&view.Title, &view.Content, &commentsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return board.PostView{}, board.ErrNotFound
	}
	if err != nil {
		return board.PostView{}, fmt.Errorf("find by title: %w", err)
	}
	if err := json.Unmarshal(commentsJSON, &view.Comments); err != nil {
		return board.PostView{}, fmt.Errorf("decode comments: %w", err)
	}
	return view, nil
}
