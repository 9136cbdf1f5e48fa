// Package board defines the types and narrow interfaces shared by the crawl
// pipeline: the browser session, the ingest queue, the post store, and the
// post model that flows between them.
package board
