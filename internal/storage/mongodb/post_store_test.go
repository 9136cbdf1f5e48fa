package mongodb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// fakeCollection applies upserts to an in-memory map keyed by the encoded
// filter and serves aggregations from canned documents.
type fakeCollection struct {
	mu        sync.Mutex
	docs      map[string]bson.Raw
	filters   []bson.D
	pipelines []mongo.Pipeline
	results   []any
	err       error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]bson.Raw)}
}

func (f *fakeCollection) UpdateOne(
	_ context.Context,
	filter any,
	update any,
	opts ...options.Lister[options.UpdateOneOptions],
) (*mongo.UpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	var args options.UpdateOneOptions
	for _, o := range opts {
		for _, set := range o.List() {
			if err := set(&args); err != nil {
				return nil, err
			}
		}
	}
	if args.Upsert == nil || !*args.Upsert {
		return nil, errors.New("expected upsert option")
	}

	key, err := bson.Marshal(filter)
	if err != nil {
		return nil, err
	}
	set := update.(bson.D)[0]
	if set.Key != "$set" {
		return nil, errors.New("expected $set update")
	}
	doc, err := bson.Marshal(set.Value)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter.(bson.D))
	_, existed := f.docs[string(key)]
	f.docs[string(key)] = doc
	if existed {
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func (f *fakeCollection) Aggregate(
	_ context.Context,
	pipeline any,
	_ ...options.Lister[options.AggregateOptions],
) (*mongo.Cursor, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.pipelines = append(f.pipelines, pipeline.(mongo.Pipeline))
	f.mu.Unlock()
	return mongo.NewCursorFromDocuments(f.results, nil, nil)
}

func testPost(author string, at time.Time) board.Post {
	return board.Post{
		Author:   author,
		Title:    "[好雷] 沙丘二",
		PostedAt: &at,
		Body:     "body",
		URL:      "https://www.ptt.cc/bbs/movie/M.1.A.html",
		Outcome:  board.OutcomeValid,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	store := newPostStore(coll, nil)
	ctx := context.Background()
	at := time.Date(2024, 12, 29, 21, 15, 4, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, testPost("filmfan (影迷)", at)))
	require.NoError(t, store.Upsert(ctx, testPost("filmfan (影迷)", at)))
	require.Len(t, coll.docs, 1)

	require.NoError(t, store.Upsert(ctx, testPost("other", at)))
	require.Len(t, coll.docs, 2)

	require.Equal(t, bson.D{{Key: "author", Value: "filmfan (影迷)"}, {Key: "posted_at", Value: at}}, coll.filters[0])
}

func TestUpsertWritesFullDocument(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	store := newPostStore(coll, nil)
	at := time.Date(2024, 12, 29, 21, 15, 4, 0, time.UTC)
	require.NoError(t, store.Upsert(context.Background(), testPost("filmfan", at)))

	for _, raw := range coll.docs {
		var doc bson.M
		require.NoError(t, bson.Unmarshal(raw, &doc))
		require.Equal(t, "filmfan", doc["author"])
		require.Equal(t, "body", doc["body"])
		require.Equal(t, "valid", doc["outcome"])
		require.Contains(t, doc, "comments")
		require.Contains(t, doc, "body_sha256")
	}
}

func TestUpsertDegradedPostUsesURL(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	store := newPostStore(coll, nil)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, board.Post{URL: "https://x/1", Outcome: board.OutcomeDegraded}))
	require.NoError(t, store.Upsert(ctx, board.Post{URL: "https://x/2", Outcome: board.OutcomeDegraded}))
	require.Len(t, coll.docs, 2)
	require.Equal(t, bson.D{{Key: "url", Value: "https://x/1"}, {Key: "posted_at", Value: nil}}, coll.filters[0])
}

func TestUpsertWrapsErrors(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	coll.err = errors.New("not primary")
	err := newPostStore(coll, nil).Upsert(context.Background(), board.Post{URL: "x"})
	require.ErrorContains(t, err, "upsert post")
	require.ErrorIs(t, err, coll.err)
}

func TestSampleTitles(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	coll.results = []any{bson.D{{Key: "title", Value: "one"}}, bson.D{{Key: "title", Value: "two"}}}
	titles, err := newPostStore(coll, nil).SampleTitles(context.Background(), 15)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, titles)

	sample := coll.pipelines[0][0]
	require.Equal(t, "$sample", sample[0].Key)
	require.Equal(t, bson.D{{Key: "size", Value: 15}}, sample[0].Value)
}

func TestFindByTitle(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 12, 29, 21, 20, 0, 0, time.UTC)
	coll := newFakeCollection()
	coll.results = []any{bson.D{
		{Key: "title", Value: "[好雷] 沙丘二"},
		{Key: "body", Value: "第一行內容"},
		{Key: "comments", Value: bson.A{bson.D{
			{Key: "tag", Value: "推"},
			{Key: "user_id", Value: "alice"},
			{Key: "content", Value: "好看"},
			{Key: "posted_at", Value: at},
		}}},
	}}
	store := newPostStore(coll, nil)

	view, err := store.FindByTitle(context.Background(), "[好雷] 沙丘二")
	require.NoError(t, err)
	require.Equal(t, "第一行內容", view.Content)
	require.Len(t, view.Comments, 1)
	require.Equal(t, "alice", view.Comments[0].UserID)
	require.True(t, at.Equal(view.Comments[0].PostedAt))

	match := coll.pipelines[0][0]
	require.Equal(t, "$match", match[0].Key)
}

func TestFindByTitleNotFound(t *testing.T) {
	t.Parallel()

	_, err := newPostStore(newFakeCollection(), nil).FindByTitle(context.Background(), "missing")
	require.ErrorIs(t, err, board.ErrNotFound)
}
