package boardtest

import (
	"fmt"
	"strings"
	"time"
)

// BaseURL is the origin the fake board is served from.
const BaseURL = "https://www.ptt.cc"

// IndexURL is the newest listing page of the fake board.
const IndexURL = BaseURL + "/bbs/movie/index.html"

// Board describes a synthetic board. Pages are numbered from 1 (newest).
type Board struct {
	Pages        int
	PostsPerPage int
	// MissingControlAfter drops the older-page control from that page. Zero
	// keeps the control everywhere, including on the oldest page.
	MissingControlAfter int
	// Degraded lists permalinks rendered without the author/time block and
	// with a malformed third comment.
	Degraded map[string]bool
	// Start is the post time of the newest post; older posts are spaced by
	// one minute.
	Start time.Time
}

// PostURL returns the permalink of post i (0-based) on page p.
func PostURL(p, i int) string {
	return fmt.Sprintf("%s/bbs/movie/M.%d.%d.html", BaseURL, p, i)
}

// PostTitle returns the listing title of post i on page p.
func PostTitle(p, i int) string {
	return fmt.Sprintf("[討論] page %d post %d", p, i)
}

// PostAuthor returns the author of post i on page p.
func PostAuthor(p, i int) string {
	return fmt.Sprintf("user%d_%d (nick)", p, i)
}

// ListingURL returns the URL of page p.
func ListingURL(p int) string {
	if p == 1 {
		return IndexURL
	}
	return fmt.Sprintf("%s/bbs/movie/index%d.html", BaseURL, 100000-p)
}

// PostedAt returns the post time of post i on page p.
func (b Board) PostedAt(p, i int) time.Time {
	start := b.Start
	if start.IsZero() {
		start = time.Date(2024, time.December, 29, 21, 0, 0, 0, time.UTC)
	}
	offset := (p-1)*b.PostsPerPage + i
	return start.Add(-time.Duration(offset) * time.Minute)
}

// Render builds every listing and post page keyed by absolute URL.
func (b Board) Render() map[string]string {
	pages := make(map[string]string)
	for p := 1; p <= b.Pages; p++ {
		pages[ListingURL(p)] = b.listing(p)
		for i := 0; i < b.PostsPerPage; i++ {
			pages[PostURL(p, i)] = b.post(p, i)
		}
	}
	return pages
}

func (b Board) listing(p int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="btn-group btn-group-paging">`)
	sb.WriteString(`<a class="btn wide" href="/bbs/movie/index1.html">最舊</a>`)
	if p != b.MissingControlAfter {
		fmt.Fprintf(&sb, `<a class="btn wide" href="%s">‹ 上頁</a>`, strings.TrimPrefix(ListingURL(p+1), BaseURL))
	}
	sb.WriteString(`</div>`)
	for i := 0; i < b.PostsPerPage; i++ {
		fmt.Fprintf(&sb, `<div class="r-ent"><div class="title"><a href="%s">%s</a></div></div>`,
			strings.TrimPrefix(PostURL(p, i), BaseURL), PostTitle(p, i))
	}
	sb.WriteString(`</body></html>`)
	return sb.String()
}

func (b Board) post(p, i int) string {
	if b.Degraded[PostURL(p, i)] {
		return degradedPost(p, i)
	}
	return fmt.Sprintf(`<html><body><div id="main-content" class="bbs-screen bbs-content">`+
		`<div class="article-metaline"><span class="article-meta-tag">作者</span><span class="article-meta-value">%s</span></div>`+
		`<div class="article-metaline"><span class="article-meta-tag">標題</span><span class="article-meta-value">%s</span></div>`+
		`<div class="article-metaline"><span class="article-meta-tag">時間</span><span class="article-meta-value">%s</span></div>`+
		"\nbody of page %d post %d\n--\n"+
		`<span class="f2">※ 發信站: 批踢踢實業坊(ptt.cc)</span>`+
		`<div class="push"><span class="push-tag">推 </span><span class="push-userid">fan</span><span class="push-content">: nice</span><span class="push-ipdatetime"> 12/30 10:00</span></div>`+
		`</div></body></html>`,
		PostAuthor(p, i), PostTitle(p, i), b.PostedAt(p, i).Format("Mon Jan _2 15:04:05 2006"), p, i)
}

func degradedPost(p, i int) string {
	return fmt.Sprintf(`<html><body><div id="main-content" class="bbs-screen bbs-content">`+
		"\nbody of page %d post %d\n--\n"+
		`<span class="f2">※ 發信站: 批踢踢實業坊(ptt.cc)</span>`+
		`<div class="push"><span class="push-tag">推 </span><span class="push-userid">fan</span><span class="push-content">: nice</span><span class="push-ipdatetime"> 12/30 10:00</span></div>`+
		`<div class="push"><span class="push-tag">→ </span><span class="push-userid">critic</span><span class="push-content">: meh</span><span class="push-ipdatetime"> 12/30 10:05</span></div>`+
		`<div class="push"><span class="push-tag">推 </span><span class="push-userid">broken</span></div>`+
		`</div></body></html>`, p, i)
}
