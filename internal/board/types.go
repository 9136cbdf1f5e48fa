package board

import "time"

// Outcome classifies how much of a post page could be extracted.
type Outcome string

// Extraction outcomes recorded on every post.
const (
	OutcomeValid     Outcome = "valid"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeAnomalous Outcome = "anomalous"
)

// Comment is a single reply attached to a post.
type Comment struct {
	Tag      string    `json:"tag" bson:"tag"`
	UserID   string    `json:"user_id" bson:"user_id"`
	Content  string    `json:"content" bson:"content"`
	PostedAt time.Time `json:"posted_at" bson:"posted_at"`
}

// Post is one forum article scraped from a post page.
type Post struct {
	Author    string     `json:"author" bson:"author"`
	Title     string     `json:"title" bson:"title"`
	PostedAt  *time.Time `json:"posted_at" bson:"posted_at"`
	Body      string     `json:"body" bson:"body"`
	Comments  []Comment  `json:"comments" bson:"comments"`
	URL       string     `json:"url" bson:"url"`
	Board     string     `json:"board" bson:"board"`
	BodyHash  string     `json:"body_sha256" bson:"body_sha256"`
	CrawlID   string     `json:"crawl_id" bson:"crawl_id"`
	Outcome   Outcome    `json:"outcome" bson:"outcome"`
	ScrapedAt time.Time  `json:"scraped_at" bson:"scraped_at"`
}

// Identity is the natural upsert key of a stored post.
//
// Posts are keyed by (Author, PostedAt). A post without a timestamp falls
// back to its permalink; otherwise every degraded post would collapse into a
// single document.
type Identity struct {
	Author   string
	PostedAt *time.Time
	URL      string
}

// ByURL reports whether the identity falls back to the permalink.
func (i Identity) ByURL() bool {
	return i.PostedAt == nil
}

// Identity returns the upsert key of the post.
func (p Post) Identity() Identity {
	if p.PostedAt == nil {
		return Identity{URL: p.URL}
	}
	return Identity{Author: p.Author, PostedAt: p.PostedAt}
}

// Candidate is one (permalink, title) pair found on a listing page.
type Candidate struct {
	URL   string
	Title string
}

// Listing is a single listing page and the candidates it links to, in page
// order.
type Listing struct {
	URL        string
	Step       int
	Candidates []Candidate
}

// Element is a queried DOM element reduced to its text and attributes.
type Element struct {
	Text  string
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// PostView is the read model returned by title lookups.
type PostView struct {
	Title    string    `json:"title" bson:"title"`
	Content  string    `json:"content" bson:"body"`
	Comments []Comment `json:"comments" bson:"comments"`
}
