// Package mongodb persists posts in a MongoDB collection.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
)

// Config locates the collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	Aggregate(ctx context.Context, pipeline any,
		opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
}

// PostStore implements board.Store and board.Reader.
type PostStore struct {
	client *mongo.Client
	coll   collection
	logger *zap.Logger
}

var (
	_ board.Store  = (*PostStore)(nil)
	_ board.Reader = (*PostStore)(nil)
)

// Connect dials MongoDB, verifies the primary is reachable and ensures the
// identity indexes exist.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*PostStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	if err := ensureIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	logger.Info("mongo store connected",
		zap.String("database", cfg.Database), zap.String("collection", cfg.Collection))
	store := newPostStore(coll, logger)
	store.client = client
	return store, nil
}

func newPostStore(coll collection, logger *zap.Logger) *PostStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostStore{coll: coll, logger: logger}
}

// ensureIndexes creates a unique (author, posted_at) index over timestamped
// posts, a unique url index over untimed posts and a title lookup index.
func ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "author", Value: 1}, {Key: "posted_at", Value: 1}},
			Options: options.Index().
				SetName("author_posted_at").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "posted_at", Value: bson.D{{Key: "$type", Value: "date"}}}}),
		},
		{
			Keys: bson.D{{Key: "url", Value: 1}},
			Options: options.Index().
				SetName("url_untimed").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "posted_at", Value: bson.D{{Key: "$type", Value: "null"}}}}),
		},
		{
			Keys:    bson.D{{Key: "title", Value: 1}},
			Options: options.Index().SetName("title"),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *PostStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// Upsert replaces every field of the document matching the post identity,
// inserting it when absent.
func (s *PostStore) Upsert(ctx context.Context, post board.Post) error {
	if post.Comments == nil {
		post.Comments = []board.Comment{}
	}
	update := bson.D{{Key: "$set", Value: post}}
	if _, err := s.coll.UpdateOne(ctx, identityFilter(post.Identity()), update,
		options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// SampleTitles returns up to n titles drawn at random.
func (s *PostStore) SampleTitles(ctx context.Context, n int) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: n}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "title", Value: 1}}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sample titles: %w", err)
	}
	var rows []struct {
		Title string `bson:"title"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode sampled titles: %w", err)
	}
	titles := make([]string, 0, len(rows))
	for _, row := range rows {
		titles = append(titles, row.Title)
	}
	return titles, nil
}

// FindByTitle returns the first post whose title matches exactly.
func (s *PostStore) FindByTitle(ctx context.Context, title string) (board.PostView, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "title", Value: title}}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "title", Value: 1},
			{Key: "body", Value: 1},
			{Key: "comments", Value: 1},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return board.PostView{}, fmt.Errorf("find by title: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			s.logger.Debug("close cursor", zap.Error(err))
		}
	}()
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return board.PostView{}, fmt.Errorf("find by title: %w", err)
		}
		return board.PostView{}, board.ErrNotFound
	}
	var view board.PostView
	if err := cursor.Decode(&view); err != nil {
		return board.PostView{}, fmt.Errorf("decode post: %w", err)
	}
	return view, nil
}

func identityFilter(id board.Identity) bson.D {
	if id.ByURL() {
		return bson.D{{Key: "url", Value: id.URL}, {Key: "posted_at", Value: nil}}
	}
	return bson.D{{Key: "author", Value: id.Author}, {Key: "posted_at", Value: *id.PostedAt}}
}
