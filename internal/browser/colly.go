package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// over18Cookie passes the age gate that guards some boards.
const over18Cookie = "over18=1"

var errNoHistory = errors.New("no previous page in history")

type page struct {
	url  string
	html string
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Colly is a board.Session over plain HTTP. It keeps its own history so Back
// restores the previous document without refetching it.
type Colly struct {
	cfg       Config
	logger    *zap.Logger
	collector *colly.Collector

	mu      sync.Mutex
	history []page
	closed  bool
}

var _ board.Session = (*Colly)(nil)

// NewColly builds a session sharing one pooled transport across requests.
func NewColly(cfg Config, logger *zap.Logger) *Colly {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.ImplicitWait <= 0 {
		cfg.ImplicitWait = defaultImplicitWait
	}
	c.SetRequestTimeout(cfg.ImplicitWait)
	return &Colly{cfg: cfg, logger: logger, collector: c}
}

// SetImplicitWait bounds each HTTP request.
func (s *Colly) SetImplicitWait(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ImplicitWait = d
	s.collector.SetRequestTimeout(d)
}

// Navigate fetches url and pushes it onto the history.
func (s *Colly) Navigate(ctx context.Context, url string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var (
		result   page
		fetchErr error
	)
	collector := s.collector.Clone()
	s.configureCollectorHooks(collector, &result, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.history = append(s.history, result)
	s.mu.Unlock()
	return result.html, nil
}

// Back drops the current page and restores the previous one.
func (s *Colly) Back(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) < 2 {
		return fmt.Errorf("navigate back: %w", errNoHistory)
	}
	s.history = s.history[:len(s.history)-1]
	return nil
}

// CurrentURL reports the final URL of the current page.
func (s *Colly) CurrentURL(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	return s.current().url, nil
}

// FindAll returns every element matching selector in the current page.
func (s *Colly) FindAll(ctx context.Context, selector string) ([]board.Element, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return queryAll(s.current().html, selector)
}

// FindByText returns the first tag element with class whose text contains text.
func (s *Colly) FindByText(ctx context.Context, tag, class, text string) (board.Element, bool, error) {
	if err := s.ready(ctx); err != nil {
		return board.Element{}, false, err
	}
	return queryByText(s.current().html, tag, class, text)
}

// Close releases the history. It is safe to call twice.
func (s *Colly) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.history = nil
		s.logger.Debug("http session closed")
	}
	return nil
}

func (s *Colly) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Cookie", over18Cookie)
	})
	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:  r.Request.URL.String(),
			html: string(r.Body),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (s *Colly) current() page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return page{}
	}
	return s.history[len(s.history)-1]
}

func (s *Colly) ready(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return board.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session call canceled: %w", err)
	}
	return nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
