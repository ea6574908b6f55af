package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// MongoArchive keeps raw and cleaned content side by side, one document per fingerprint.
type MongoArchive struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var (
	_ ports.ArticleStore  = (*MongoArchive)(nil)
	_ ports.ArticlePruner = (*MongoArchive)(nil)
)

type archiveDocument struct {
	Fingerprint string     `bson:"_id"`
	Source      string     `bson:"source"`
	Category    string     `bson:"category,omitempty"`
	URL         string     `bson:"url"`
	Title       string     `bson:"title"`
	PublishedAt *time.Time `bson:"published_at,omitempty"`
	Tags        []string   `bson:"tags,omitempty"`
	RawContent  string     `bson:"raw_content"`
	Content     string     `bson:"content"`
	CrawledAt   time.Time  `bson:"crawled_at"`
}

// NewMongoArchive connects, pings and ensures the lookup index.
func NewMongoArchive(ctx context.Context, cfg config.MongoConfig) (*MongoArchive, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "source", Value: 1}, {Key: "crawled_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create mongo index: %w", err)
	}

	return &MongoArchive{client: client, coll: coll}, nil
}

// NewMongoArchiveWithCollection wraps an existing collection.
func NewMongoArchiveWithCollection(coll *mongo.Collection) *MongoArchive {
	return &MongoArchive{coll: coll}
}

// Store upserts with $setOnInsert so a repeated fingerprint never rewrites the document.
func (a *MongoArchive) Store(ctx context.Context, record domain.ArticleRecord, _ []float32) error {
	doc := archiveDocument{
		Fingerprint: record.Fingerprint,
		Source:      record.Source,
		Category:    record.Category,
		URL:         record.URL,
		Title:       record.Title,
		PublishedAt: record.PublishedAt,
		Tags:        record.Tags,
		RawContent:  record.RawContent,
		Content:     record.Content,
		CrawledAt:   record.CrawledAt,
	}

	_, err := a.coll.UpdateOne(ctx,
		bson.M{"_id": record.Fingerprint},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("archive article: %w", err)
	}
	return nil
}

// DeleteOlderThan drops archived documents crawled before cutoff.
func (a *MongoArchive) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.coll.DeleteMany(ctx, bson.M{"crawled_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete archived articles: %w", err)
	}
	return res.DeletedCount, nil
}

// Close disconnects the client if the archive owns it.
func (a *MongoArchive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
