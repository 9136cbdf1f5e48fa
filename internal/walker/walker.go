// Package walker pages backward through a board's listing pages.
package walker

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/metrics"
)

// Config locates the board and its listing markers.
type Config struct {
	IndexURL     string
	LinkSelector string
	OlderTag     string
	OlderClass   string
	OlderText    string
	// MaxPages bounds the number of older-page steps after the index page.
	MaxPages int
}

// VisitFunc receives each listing page while the session is positioned on
// it. Returning an error stops the walk with that error.
type VisitFunc func(ctx context.Context, listing board.Listing) error

// Walker drives a board.Session across listing pages, newest first.
type Walker struct {
	cfg     Config
	session board.Session
	logger  *zap.Logger
}

// New constructs a Walker.
func New(cfg Config, session board.Session, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{cfg: cfg, session: session, logger: logger.Named("walker")}
}

// Walk visits the index page and then up to MaxPages older pages. It returns
// nil when the bound is exhausted and board.ErrControlMissing when a page
// has no older-page control; that page is still visited first.
func (w *Walker) Walk(ctx context.Context, visit VisitFunc) error {
	next := w.cfg.IndexURL
	for step := 0; ; step++ {
		listing, older, err := w.open(ctx, next, step)
		if err != nil {
			return err
		}
		if err := visit(ctx, listing); err != nil {
			return err
		}
		if step >= w.cfg.MaxPages {
			w.logger.Info("page bound reached", zap.Int("steps", step))
			return nil
		}
		if older == "" {
			return fmt.Errorf("listing page %s: %w", listing.URL, board.ErrControlMissing)
		}
		next = older
	}
}

// open navigates to a listing page and reads its candidates and the target
// of its older-page control before any post is visited.
func (w *Walker) open(ctx context.Context, target string, step int) (board.Listing, string, error) {
	if _, err := w.session.Navigate(ctx, target); err != nil {
		return board.Listing{}, "", fmt.Errorf("open listing page %s: %w", target, err)
	}
	pageURL, err := w.session.CurrentURL(ctx)
	if err != nil || pageURL == "" {
		pageURL = target
	}
	w.logger.Info("listing page opened", zap.String("url", pageURL), zap.Int("step", step))
	metrics.ObserveListingPage()

	links, err := w.session.FindAll(ctx, w.cfg.LinkSelector)
	if err != nil {
		return board.Listing{}, "", fmt.Errorf("find post links on %s: %w", pageURL, err)
	}
	listing := board.Listing{URL: pageURL, Step: step}
	for _, link := range links {
		href := link.Attr("href")
		if href == "" {
			continue
		}
		abs, err := resolve(pageURL, href)
		if err != nil {
			w.logger.Warn("skipping unresolvable link", zap.String("href", href), zap.Error(err))
			continue
		}
		listing.Candidates = append(listing.Candidates, board.Candidate{URL: abs, Title: link.Text})
	}

	control, ok, err := w.session.FindByText(ctx, w.cfg.OlderTag, w.cfg.OlderClass, w.cfg.OlderText)
	if err != nil {
		return board.Listing{}, "", fmt.Errorf("find older-page control on %s: %w", pageURL, err)
	}
	if !ok || control.Attr("href") == "" {
		return listing, "", nil
	}
	older, err := resolve(pageURL, control.Attr("href"))
	if err != nil {
		return board.Listing{}, "", fmt.Errorf("resolve older-page link: %w", err)
	}
	return listing, older, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}
