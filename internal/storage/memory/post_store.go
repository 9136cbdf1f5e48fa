package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// PostStore keeps posts in memory keyed by identity. It backs tests and
// single-process dry runs.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]board.Post
	order []string
}

var (
	_ board.Store  = (*PostStore)(nil)
	_ board.Reader = (*PostStore)(nil)
)

// NewPostStore constructs an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[string]board.Post)}
}

// Upsert replaces the document with the same identity or inserts a new one.
func (s *PostStore) Upsert(ctx context.Context, post board.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := identityKey(post.Identity())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[key]; !ok {
		s.order = append(s.order, key)
	}
	s.posts[key] = clonePost(post)
	return nil
}

// Len returns the number of stored documents.
func (s *PostStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Posts returns stored documents in first-insert order.
func (s *PostStore) Posts() []board.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]board.Post, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, clonePost(s.posts[key]))
	}
	return out
}

// SampleTitles returns up to n distinct stored documents' titles in random
// order.
func (s *PostStore) SampleTitles(_ context.Context, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n = max(0, min(n, len(s.order)))
	titles := make([]string, 0, n)
	for _, i := range rand.Perm(len(s.order))[:n] {
		titles = append(titles, s.posts[s.order[i]].Title)
	}
	return titles, nil
}

// FindByTitle returns the first stored post with an exact title match.
func (s *PostStore) FindByTitle(_ context.Context, title string) (board.PostView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.order {
		post := s.posts[key]
		if post.Title == title {
			return board.PostView{
				Title:    post.Title,
				Content:  post.Body,
				Comments: append([]board.Comment(nil), post.Comments...),
			}, nil
		}
	}
	return board.PostView{}, board.ErrNotFound
}

func identityKey(id board.Identity) string {
	if id.ByURL() {
		return "url\x00" + id.URL
	}
	return id.Author + "\x00" + id.PostedAt.UTC().Format(time.RFC3339Nano)
}

func clonePost(post board.Post) board.Post {
	post.Comments = append([]board.Comment(nil), post.Comments...)
	if post.PostedAt != nil {
		t := *post.PostedAt
		post.PostedAt = &t
	}
	return post
}
