package walker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/board/boardtest"
)

func testConfig(maxPages int) Config {
	return Config{
		IndexURL:     boardtest.IndexURL,
		LinkSelector: ".title a",
		OlderTag:     "a",
		OlderClass:   "btn wide",
		OlderText:    "‹ 上頁",
		MaxPages:     maxPages,
	}
}

func collect(t *testing.T, w *Walker) ([]board.Listing, error) {
	t.Helper()
	var listings []board.Listing
	err := w.Walk(context.Background(), func(_ context.Context, l board.Listing) error {
		listings = append(listings, l)
		return nil
	})
	return listings, err
}

func TestWalkStopsAtPageBound(t *testing.T) {
	t.Parallel()

	fake := boardtest.NewSession(boardtest.Board{Pages: 5, PostsPerPage: 2}.Render())
	listings, err := collect(t, New(testConfig(2), fake, nil))
	require.NoError(t, err)
	require.Len(t, listings, 3)

	for step, l := range listings {
		require.Equal(t, step, l.Step)
		require.Equal(t, boardtest.ListingURL(step+1), l.URL)
		require.Equal(t, []board.Candidate{
			{URL: boardtest.PostURL(step+1, 0), Title: boardtest.PostTitle(step+1, 0)},
			{URL: boardtest.PostURL(step+1, 1), Title: boardtest.PostTitle(step+1, 1)},
		}, l.Candidates)
	}
}

func TestWalkControlMissingIsFatalAfterVisit(t *testing.T) {
	t.Parallel()

	fake := boardtest.NewSession(boardtest.Board{Pages: 4, PostsPerPage: 1, MissingControlAfter: 4}.Render())
	listings, err := collect(t, New(testConfig(1000), fake, nil))
	require.ErrorIs(t, err, board.ErrControlMissing)
	require.Len(t, listings, 4)
	require.Equal(t, boardtest.ListingURL(4), listings[3].URL)
}

func TestWalkZeroBoundVisitsIndexOnly(t *testing.T) {
	t.Parallel()

	fake := boardtest.NewSession(boardtest.Board{Pages: 1, PostsPerPage: 1, MissingControlAfter: 1}.Render())
	listings, err := collect(t, New(testConfig(0), fake, nil))
	require.NoError(t, err)
	require.Len(t, listings, 1)
}

func TestWalkPropagatesVisitError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fake := boardtest.NewSession(boardtest.Board{Pages: 3, PostsPerPage: 1}.Render())
	err := New(testConfig(10), fake, nil).Walk(context.Background(), func(context.Context, board.Listing) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{boardtest.IndexURL}, fake.Visits())
}

func TestWalkNavigationFailure(t *testing.T) {
	t.Parallel()

	fake := boardtest.NewSession(boardtest.Board{Pages: 3, PostsPerPage: 1}.Render())
	fake.FailOn(boardtest.ListingURL(2), errors.New("timeout"))
	listings, err := collect(t, New(testConfig(10), fake, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "open listing page")
	require.Len(t, listings, 1)
}

func TestWalkLogsPageTransitions(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	fake := boardtest.NewSession(boardtest.Board{Pages: 3, PostsPerPage: 1}.Render())
	_, err := collect(t, New(testConfig(1), fake, zap.New(core)))
	require.NoError(t, err)

	opened := logs.FilterMessage("listing page opened").All()
	require.Len(t, opened, 2)
	require.Equal(t, boardtest.IndexURL, opened[0].ContextMap()["url"])
	require.Equal(t, int64(1), opened[1].ContextMap()["step"])
}

func TestResolve(t *testing.T) {
	t.Parallel()

	got, err := resolve("https://www.ptt.cc/bbs/movie/index.html", "/bbs/movie/M.1.A.html")
	require.NoError(t, err)
	require.Equal(t, "https://www.ptt.cc/bbs/movie/M.1.A.html", got)

	got, err = resolve("https://www.ptt.cc/bbs/movie/index.html", "https://other.example/x")
	require.NoError(t, err)
	require.Equal(t, "https://other.example/x", got)
}
