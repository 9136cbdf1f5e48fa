package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
)

const defaultImplicitWait = 10 * time.Second

// Config controls both session implementations.
type Config struct {
	UserAgent     string
	ImplicitWait  time.Duration
	Headless      bool
	RespectRobots bool
}

// Chromedp is a board.Session backed by a single headless Chrome tab. DOM
// queries run against the HTML captured after the last navigation.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu      sync.Mutex
	html    string
	url     string
	wait    time.Duration
	started bool
	closed  bool
}

var _ board.Session = (*Chromedp)(nil)

// NewChromedp allocates a browser and a tab. Chrome itself starts lazily on
// the first navigation.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := cfg.ImplicitWait
	if wait <= 0 {
		wait = defaultImplicitWait
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	return &Chromedp{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		wait:        wait,
	}
}

// SetImplicitWait bounds every browser round trip.
func (c *Chromedp) SetImplicitWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.wait = d
	}
}

// Navigate loads url, waits for the body and snapshots the rendered DOM.
func (c *Chromedp) Navigate(ctx context.Context, url string) (string, error) {
	var actions []chromedp.Action
	if c.needsSetup() {
		if err := c.start(ctx); err != nil {
			return "", err
		}
		actions = append(actions, c.setupAction())
	}
	actions = append(actions, chromedp.Navigate(url))
	if err := c.run(ctx, c.snapshotActions(actions...)...); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return c.currentHTML(), nil
}

// Back returns to the previous history entry and refreshes the snapshot.
func (c *Chromedp) Back(ctx context.Context) error {
	if err := c.run(ctx, c.snapshotActions(chromedp.NavigateBack())...); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// CurrentURL reports the URL of the last snapshot.
func (c *Chromedp) CurrentURL(ctx context.Context) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url, nil
}

// FindAll returns every element matching selector in the current page.
func (c *Chromedp) FindAll(ctx context.Context, selector string) ([]board.Element, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return queryAll(c.currentHTML(), selector)
}

// FindByText returns the first tag element with class whose text contains text.
func (c *Chromedp) FindByText(ctx context.Context, tag, class, text string) (board.Element, bool, error) {
	if err := c.ready(ctx); err != nil {
		return board.Element{}, false, err
	}
	return queryByText(c.currentHTML(), tag, class, text)
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (c *Chromedp) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.tabCancel()
	c.allocCancel()
	c.logger.Debug("browser session closed")
	return nil
}

func (c *Chromedp) snapshotActions(actions ...chromedp.Action) []chromedp.Action {
	var (
		html     string
		location string
	)
	return append(actions,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.ActionFunc(func(context.Context) error {
			c.mu.Lock()
			c.html = html
			c.url = location
			c.mu.Unlock()
			return nil
		}),
	)
}

// start allocates the browser on the long-lived tab context. The first Run on
// a chromedp context owns the browser, so it must not carry a timeout.
func (c *Chromedp) start(ctx context.Context) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	if err := chromedp.Run(c.tabCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		return nil
	})
}

// run executes actions on the tab, bounded by the implicit wait and by ctx.
func (c *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	wait := c.wait
	c.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(c.tabCtx, wait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp canceled: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (c *Chromedp) ready(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return board.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session call canceled: %w", err)
	}
	return nil
}

func (c *Chromedp) needsSetup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.started
}

func (c *Chromedp) currentHTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.html
}
