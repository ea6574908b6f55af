package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository archives cleaned articles in Postgres.
type PostgresRepository struct {
	db *sqlx.DB
}

var (
	_ ports.ArticleStore  = (*PostgresRepository)(nil)
	_ ports.ArticlePruner = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sqlx.DB implementation.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Store inserts the article once; a second call with the same fingerprint is a no-op.
func (r *PostgresRepository) Store(ctx context.Context, record domain.ArticleRecord, vector []float32) error {
	if r.db == nil {
		return nil
	}

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}

	query, args, err := psql.
		Insert("articles").
		Columns("fingerprint", "source", "category", "url", "title", "published_at",
			"tags", "content", "embedding_dim", "crawled_at").
		Values(record.Fingerprint, record.Source, record.Category, record.URL, record.Title,
			record.PublishedAt, pq.StringArray(tags), record.Content, len(vector), record.CrawledAt).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// DeleteOlderThan removes articles crawled before cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.db == nil {
		return 0, nil
	}

	query, args, err := psql.
		Delete("articles").
		Where(sq.Lt{"crawled_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CountBySource returns how many articles each source has archived.
func (r *PostgresRepository) CountBySource(ctx context.Context) (map[string]int, error) {
	query, args, err := psql.
		Select("source", "COUNT(*) AS total").
		From("articles").
		GroupBy("source").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}

	var rows []struct {
		Source string `db:"source"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	result := make(map[string]int, len(rows))
	for _, row := range rows {
		result[row.Source] = row.Total
	}
	return result, nil
}
