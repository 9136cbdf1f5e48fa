// Package boardtest provides deterministic fakes of the board interfaces for
// tests: an in-memory board served through a fake browser session.
package boardtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// ErrPageNotFound is returned when navigating to a URL the fake does not serve.
var ErrPageNotFound = errors.New("fake page not found")

// Session is a board.Session serving fixed pages from memory.
type Session struct {
	mu       sync.Mutex
	pages    map[string]string
	fail     map[string]error
	history  []string
	visits   []string
	wait     time.Duration
	closed   bool
	closeCnt int
}

var _ board.Session = (*Session)(nil)

// NewSession serves pages keyed by absolute URL.
func NewSession(pages map[string]string) *Session {
	return &Session{pages: pages, fail: make(map[string]error)}
}

// FailOn makes navigation to url return err.
func (s *Session) FailOn(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[url] = err
}

// Navigate implements board.Session.
func (s *Session) Navigate(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("navigate canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", board.ErrSessionClosed
	}
	s.visits = append(s.visits, url)
	if err, ok := s.fail[url]; ok {
		return "", err
	}
	html, ok := s.pages[url]
	if !ok {
		return "", fmt.Errorf("%s: %w", url, ErrPageNotFound)
	}
	s.history = append(s.history, url)
	return html, nil
}

// CurrentURL implements board.Session.
func (s *Session) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", board.ErrSessionClosed
	}
	return s.current(), nil
}

// Back implements board.Session.
func (s *Session) Back(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return board.ErrSessionClosed
	}
	if len(s.history) < 2 {
		return errors.New("fake history exhausted")
	}
	s.history = s.history[:len(s.history)-1]
	return nil
}

// FindAll implements board.Session.
func (s *Session) FindAll(_ context.Context, selector string) ([]board.Element, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	var out []board.Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, element(sel))
	})
	return out, nil
}

// FindByText implements board.Session.
func (s *Session) FindByText(_ context.Context, tag, class, text string) (board.Element, bool, error) {
	doc, err := s.document()
	if err != nil {
		return board.Element{}, false, err
	}
	sel := doc.Find(tag + "." + strings.Join(strings.Fields(class), ".")).FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(sel.Text(), text)
	}).First()
	if sel.Length() == 0 {
		return board.Element{}, false, nil
	}
	return element(sel), true, nil
}

// SetImplicitWait implements board.Session.
func (s *Session) SetImplicitWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wait = d
}

// Close implements board.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCnt++
	return nil
}

// Closed reports whether Close was called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Visits returns every URL passed to Navigate, in order.
func (s *Session) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

func (s *Session) current() string {
	if len(s.history) == 0 {
		return ""
	}
	return s.history[len(s.history)-1]
}

func (s *Session) document() (*goquery.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, board.ErrSessionClosed
	}
	html := s.pages[s.current()]
	s.mu.Unlock()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse fake page: %w", err)
	}
	return doc, nil
}

func element(sel *goquery.Selection) board.Element {
	el := board.Element{Text: strings.TrimSpace(sel.Text()), Attrs: map[string]string{}}
	for _, attr := range sel.Nodes[0].Attr {
		el.Attrs[attr.Key] = attr.Val
	}
	return el
}
