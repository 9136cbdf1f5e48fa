// Package menu implements the interactive console for browsing stored posts.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/query"
)

const (
	actionList   = 1
	actionLookup = 2
	actionExit   = 3

	exitWord          = "exit"
	commentTimeLayout = "01-02 15:04"
)

// Querier is the read side the menu drives.
type Querier interface {
	SampleTitles(ctx context.Context, n int) ([]string, error)
	FindByTitle(ctx context.Context, title string) (board.PostView, error)
}

// Menu reads actions line by line and prints results.
type Menu struct {
	queries  Querier
	location *time.Location
	logger   *zap.Logger
}

// New constructs a Menu. Comment times are printed in loc, UTC when nil.
func New(queries Querier, loc *time.Location, logger *zap.Logger) *Menu {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Menu{queries: queries, location: loc, logger: logger.Named("menu")}
}

// Run loops until the exit action, end of input, or ctx ends.
func (m *Menu) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	p := &printer{w: out}
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("menu stopped: %w", err)
		}
		p.printf("\n1: Get the list of 15 articles. 2: Get the specified article. 3: Exit.\n")
		p.printf("Enter an action: ")
		line, ok := readLine(scanner)
		if !ok {
			return m.endOfInput(scanner, p)
		}

		action, err := strconv.Atoi(line)
		if err != nil {
			p.printf("Only accept integers. Try again.\n")
			m.logger.Error("menu got an input that's not integer", zap.String("input", line))
			continue
		}
		switch action {
		case actionList:
			m.list(ctx, p)
		case actionLookup:
			if err := m.lookup(ctx, scanner, p); err != nil {
				return err
			}
		case actionExit:
			p.printf("Bye.\n")
			return p.err
		default:
			p.printf("Only accept 1, 2, or 3. Try again.\n")
			m.logger.Error("menu got an integer input that's not in the range", zap.Int("input", action))
		}
		if p.err != nil {
			return p.err
		}
	}
}

func (m *Menu) list(ctx context.Context, p *printer) {
	titles, err := m.queries.SampleTitles(ctx, query.DefaultSampleSize)
	if err != nil {
		p.printf("Could not list articles. Try again.\n")
		m.logger.Error("sample titles failed", zap.Error(err))
		return
	}
	p.printf("title\n")
	for _, title := range titles {
		p.printf("%s\n", title)
	}
}

func (m *Menu) lookup(ctx context.Context, scanner *bufio.Scanner, p *printer) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("menu stopped: %w", err)
		}
		p.printf("Enter the title or 'exit' to switch to other actions: ")
		title, ok := readLine(scanner)
		if !ok {
			return m.endOfInput(scanner, p)
		}
		if title == exitWord {
			return nil
		}

		view, err := m.queries.FindByTitle(ctx, title)
		switch {
		case err == nil:
			m.printPost(p, view)
		case errors.Is(err, board.ErrNotFound), errors.Is(err, query.ErrEmptyTitle):
			p.printf("Article not found. Try again or enter 'exit' to switch to other actions.\n")
			m.logger.Error("article not found", zap.String("title", title))
		default:
			p.printf("Lookup failed. Try again or enter 'exit' to switch to other actions.\n")
			m.logger.Error("title lookup failed", zap.String("title", title), zap.Error(err))
		}
		if p.err != nil {
			return p.err
		}
	}
}

func (m *Menu) printPost(p *printer, view board.PostView) {
	p.printf("title\n\n%s\n\n", view.Title)
	p.printf("content\n\n%s\n\n", view.Content)
	p.printf("comments\n\n")
	for _, c := range view.Comments {
		p.printf("%s\n\n", m.formatComment(c))
	}
}

func (m *Menu) formatComment(c board.Comment) string {
	return fmt.Sprintf("%s %s %s %s", c.Tag, c.UserID, c.Content, c.PostedAt.In(m.location).Format(commentTimeLayout))
}

// endOfInput treats a closed reader as an exit request.
func (m *Menu) endOfInput(scanner *bufio.Scanner, p *printer) error {
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	p.printf("\nBye.\n")
	return p.err
}

func readLine(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}

// printer remembers the first write error so the loop can stop on it.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	if _, err := fmt.Fprintf(p.w, format, args...); err != nil {
		p.err = fmt.Errorf("write output: %w", err)
	}
}
