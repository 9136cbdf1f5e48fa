package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-crawler/internal/board"
)

func newMockStore(t *testing.T) (*PostStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostStoreWithPool(mock, "posts")
	require.NoError(t, err)
	return store, mock
}

func TestNewPostStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostStoreWithPool(nil, "posts")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPostStoreWithPool(mock, "posts; DROP TABLE x")
	require.Error(t, err)

	store, err := NewPostStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS posts`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS posts_author_posted_at`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS posts_url_untimed`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS posts_title`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTimestampedPost(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2024, 12, 29, 21, 15, 4, 0, time.UTC)
	scraped := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	post := board.Post{
		Author:    "filmfan (影迷)",
		Title:     "[好雷] 沙丘二",
		PostedAt:  &at,
		Body:      "body",
		URL:       "https://www.ptt.cc/bbs/movie/M.1.A.html",
		Board:     "movie",
		BodyHash:  "abc",
		CrawlID:   "crawl-1",
		Outcome:   board.OutcomeValid,
		ScrapedAt: scraped,
	}

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`(?s)INSERT INTO posts .* ON CONFLICT \(author, posted_at\) WHERE posted_at IS NOT NULL DO UPDATE`).
			WithArgs(
				post.Author,
				post.Title,
				post.PostedAt,
				post.Body,
				[]byte(`[]`),
				post.URL,
				post.Board,
				post.BodyHash,
				post.CrawlID,
				"valid",
				scraped,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.Upsert(context.Background(), post))
	require.NoError(t, store.Upsert(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDegradedPostConflictsOnURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	commentAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	post := board.Post{
		URL:      "https://www.ptt.cc/bbs/movie/M.2.A.html",
		Comments: []board.Comment{{Tag: "推", UserID: "dave", Content: "ok", PostedAt: commentAt}},
		Outcome:  board.OutcomeDegraded,
	}

	mock.ExpectExec(`ON CONFLICT \(url\) WHERE posted_at IS NULL`).
		WithArgs(
			"", "", (*time.Time)(nil), "",
			[]byte(`[{"tag":"推","user_id":"dave","content":"ok","posted_at":"2025-03-01T10:00:00Z"}]`),
			post.URL, "", "", "", "degraded", time.Time{},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWrapsErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO posts`).WillReturnError(errors.New("connection reset"))

	err := store.Upsert(context.Background(), board.Post{URL: "x"})
	require.ErrorContains(t, err, "upsert post")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleTitles(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT title FROM posts ORDER BY random\(\) LIMIT \$1`).
		WithArgs(15).
		WillReturnRows(mock.NewRows([]string{"title"}).AddRow("one").AddRow("two"))

	titles, err := store.SampleTitles(context.Background(), 15)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, titles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTitle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT title, body, comments FROM posts WHERE title = \$1`).
		WithArgs("[好雷] 沙丘二").
		WillReturnRows(mock.NewRows([]string{"title", "body", "comments"}).
			AddRow("[好雷] 沙丘二", "第一行內容", []byte(`[{"tag":"推","user_id":"alice","content":"好看","posted_at":"2024-12-29T21:20:00Z"}]`)))

	view, err := store.FindByTitle(context.Background(), "[好雷] 沙丘二")
	require.NoError(t, err)
	require.Equal(t, "第一行內容", view.Content)
	require.Len(t, view.Comments, 1)
	require.Equal(t, "alice", view.Comments[0].UserID)
	require.True(t, time.Date(2024, 12, 29, 21, 20, 0, 0, time.UTC).Equal(view.Comments[0].PostedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTitleNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT title, body, comments FROM posts`).
		WithArgs("missing").
		WillReturnRows(mock.NewRows([]string{"title", "body", "comments"}))

	_, err := store.FindByTitle(context.Background(), "missing")
	require.ErrorIs(t, err, board.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
