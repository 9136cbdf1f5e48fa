package extract

import "time"

// Comment year policies. Comment timestamps carry month, day, hour and
// minute only; the year is supplied by the policy.
const (
	// YearFromPost uses the post's own year, moving to the next year when
	// the comment date falls before the post (replies across New Year).
	YearFromPost = "post"
	// YearFromCrawl uses the crawl clock's year, moving to the previous
	// year when the comment would otherwise lie in the future.
	YearFromCrawl = "crawl"
	// YearFixed uses Config.FixedYear for every comment.
	YearFixed = "fixed"
)

// rolloverSlack tolerates clock skew between the post and comment clocks.
const rolloverSlack = 24 * time.Hour

type yearFunc func(month time.Month, day, hour, minute int, loc *time.Location) time.Time

// years returns the year completion function for a post. A degraded post
// without a timestamp falls back to crawl time under the post policy.
func (e *Extractor) years(postedAt *time.Time, now time.Time) yearFunc {
	switch {
	case e.cfg.YearPolicy == YearFixed:
		year := e.cfg.FixedYear
		return func(month time.Month, day, hour, minute int, loc *time.Location) time.Time {
			return time.Date(year, month, day, hour, minute, 0, 0, loc)
		}
	case e.cfg.YearPolicy == YearFromPost && postedAt != nil:
		post := *postedAt
		return func(month time.Month, day, hour, minute int, loc *time.Location) time.Time {
			t := time.Date(post.Year(), month, day, hour, minute, 0, 0, loc)
			if t.Before(post.Add(-rolloverSlack)) {
				t = t.AddDate(1, 0, 0)
			}
			return t
		}
	default:
		return func(month time.Month, day, hour, minute int, loc *time.Location) time.Time {
			t := time.Date(now.In(loc).Year(), month, day, hour, minute, 0, 0, loc)
			if t.After(now.Add(rolloverSlack)) {
				t = t.AddDate(-1, 0, 0)
			}
			return t
		}
	}
}
