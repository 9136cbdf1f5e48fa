// Package extract turns a rendered post page into a board.Post. Extraction
// never fails: structural anomalies degrade the post and are reported as
// diagnostics so the pipeline keeps flowing.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Markers used by the PTT post layout.
const (
	authorLabel     = "作者"
	timeLabel       = "時間"
	subjectLabel    = "標題"
	footerDelimiter = "\n--\n"
	postTimeLayout  = "Mon Jan _2 15:04:05 2006"
	commentFields   = 4
)

var (
	commentTimePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})\s*$`)
	boardPattern       = regexp.MustCompile(`/bbs/([^/]+)/`)
)

// DiagnosticKind classifies a non-fatal extraction anomaly.
type DiagnosticKind string

// Diagnostic kinds reported by Extract.
const (
	StructuralAnomaly     DiagnosticKind = "structural_anomaly"
	InvalidPostTime       DiagnosticKind = "invalid_post_time"
	MissingCommentMarker  DiagnosticKind = "missing_comment_marker"
	MalformedCommentBlock DiagnosticKind = "malformed_comment_block"
	UnparsableMarkup      DiagnosticKind = "unparsable_markup"
)

// Diagnostic describes one anomaly found while extracting a post.
type Diagnostic struct {
	Kind   DiagnosticKind
	Detail string
}

// Result is the extracted post plus everything that went wrong on the way.
type Result struct {
	Post            board.Post
	Diagnostics     []Diagnostic
	DroppedComments int
}

// Config controls timestamp interpretation.
type Config struct {
	// YearPolicy is one of YearFromPost, YearFromCrawl or YearFixed.
	YearPolicy string
	FixedYear  int
	// Location is the source's local time zone. Defaults to UTC.
	Location *time.Location
}

// Extractor parses post pages.
type Extractor struct {
	cfg   Config
	clock board.Clock
}

// New constructs an Extractor. The clock supplies crawl time for the "crawl"
// year policy and for Post.ScrapedAt.
func New(cfg Config, clock board.Clock) *Extractor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.YearPolicy == "" {
		cfg.YearPolicy = YearFromPost
	}
	return &Extractor{cfg: cfg, clock: clock}
}

// Extract parses one post page. title comes from the listing page and url is
// the permalink the page was fetched from.
func (e *Extractor) Extract(html, url, title string) Result {
	now := e.clock.Now()
	res := Result{
		Post: board.Post{
			Title:     title,
			URL:       url,
			Board:     boardFromURL(url),
			ScrapedAt: now,
			Comments:  []board.Comment{},
		},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		res.addDiagnostic(UnparsableMarkup, err.Error())
		res.Post.Outcome = board.OutcomeAnomalous
		return res
	}

	degraded := e.extractMeta(doc, &res)
	res.Post.Body = extractBody(doc)
	res.Post.BodyHash = hashBody(res.Post.Body)

	years := e.years(res.Post.PostedAt, now)
	e.extractComments(doc, years, &res)

	switch {
	case degraded:
		res.Post.Outcome = board.OutcomeDegraded
	case res.hasAnomaly():
		res.Post.Outcome = board.OutcomeAnomalous
	default:
		res.Post.Outcome = board.OutcomeValid
	}
	return res
}

func (e *Extractor) extractMeta(doc *goquery.Document, res *Result) bool {
	author, okAuthor := metaValue(doc, authorLabel)
	rawTime, okTime := metaValue(doc, timeLabel)
	if !okAuthor || !okTime {
		res.addDiagnostic(StructuralAnomaly, "author or time metadata missing")
		return true
	}
	res.Post.Author = author

	postedAt, err := e.parsePostTime(rawTime)
	if err != nil {
		res.addDiagnostic(InvalidPostTime, rawTime)
		return false
	}
	res.Post.PostedAt = &postedAt
	return false
}

func (e *Extractor) parsePostTime(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(postTimeLayout, raw, e.cfg.Location)
	if err == nil {
		return t, nil
	}
	return dateparse.ParseIn(raw, e.cfg.Location)
}

// metaValue returns the value span that follows the labelled meta tag.
func metaValue(doc *goquery.Document, label string) (string, bool) {
	tag := doc.Find("span.article-meta-tag").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == label
	}).First()
	if tag.Length() == 0 {
		return "", false
	}
	value := tag.Next()
	if value.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(value.Text()), true
}

// extractBody keeps the main content before the signature delimiter and
// drops a leading subject line.
func extractBody(doc *goquery.Document) string {
	content := doc.Find("#main-content").First().Text()
	article, _, _ := strings.Cut(content, footerDelimiter)
	return stripSubjectLine(article)
}

func stripSubjectLine(article string) string {
	lines := strings.Split(article, "\n")
	if strings.Contains(lines[0], subjectLabel) {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func (e *Extractor) extractComments(doc *goquery.Document, years yearFunc, res *Result) {
	nodes := doc.Find("span.f2, div.push")
	marker := -1
	nodes.Each(func(i int, s *goquery.Selection) {
		if goquery.NodeName(s) == "span" {
			marker = i
		}
	})
	if marker < 0 && nodes.Length() > 0 {
		res.addDiagnostic(MissingCommentMarker, "no page separator before comments")
	}

	nodes.Each(func(i int, s *goquery.Selection) {
		if i <= marker || goquery.NodeName(s) != "div" {
			return
		}
		comment, ok := parseComment(s, years, e.cfg.Location)
		if !ok {
			res.DroppedComments++
			res.addDiagnostic(MalformedCommentBlock, strings.TrimSpace(s.Text()))
			return
		}
		res.Post.Comments = append(res.Post.Comments, comment)
	})
}

func parseComment(s *goquery.Selection, years yearFunc, loc *time.Location) (board.Comment, bool) {
	fields := s.Children()
	if fields.Length() < commentFields {
		return board.Comment{}, false
	}
	postedAt, ok := parseCommentTime(strings.TrimSpace(fields.Eq(3).Text()), years, loc)
	if !ok {
		return board.Comment{}, false
	}
	content := strings.TrimSpace(fields.Eq(2).Text())
	content = strings.TrimSpace(strings.TrimPrefix(content, ":"))
	return board.Comment{
		Tag:      strings.TrimSpace(fields.Eq(0).Text()),
		UserID:   strings.TrimSpace(fields.Eq(1).Text()),
		Content:  content,
		PostedAt: postedAt,
	}, true
}

// parseCommentTime reads the trailing "MM/DD HH:MM" of a comment time field;
// the field may carry a leading IP address.
func parseCommentTime(raw string, years yearFunc, loc *time.Location) (time.Time, bool) {
	m := commentTimePattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	month, day, hour, minute := atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return years(time.Month(month), day, hour, minute, loc), true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func boardFromURL(url string) string {
	m := boardPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func (r *Result) addDiagnostic(kind DiagnosticKind, detail string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Kind: kind, Detail: detail})
}

func (r *Result) hasAnomaly() bool {
	for _, d := range r.Diagnostics {
		if d.Kind != MalformedCommentBlock {
			return true
		}
	}
	return false
}
