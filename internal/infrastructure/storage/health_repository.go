package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// HealthRepository persists source health in the source_health table.
type HealthRepository struct {
	db *sqlx.DB
}

var _ ports.HealthStore = (*HealthRepository)(nil)

// NewHealthRepository wires a sqlx.DB implementation.
func NewHealthRepository(db *sqlx.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

type healthRow struct {
	Source              string       `db:"source"`
	State               string       `db:"state"`
	ConsecutiveFailures int          `db:"consecutive_failures"`
	LastSuccess         sql.NullTime `db:"last_success"`
	LastFailure         sql.NullTime `db:"last_failure"`
	LastError           string       `db:"last_error"`
	DisabledAt          sql.NullTime `db:"disabled_at"`
}

// LoadHealth reads every persisted entry.
func (r *HealthRepository) LoadHealth(ctx context.Context) ([]domain.SourceHealth, error) {
	query, args, err := psql.
		Select("source", "state", "consecutive_failures", "last_success", "last_failure",
			"last_error", "disabled_at").
		From("source_health").
		OrderBy("source").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []healthRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load source health: %w", err)
	}

	entries := make([]domain.SourceHealth, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.SourceHealth{
			Source:              row.Source,
			State:               domain.HealthState(row.State),
			ConsecutiveFailures: row.ConsecutiveFailures,
			LastSuccess:         fromNull(row.LastSuccess),
			LastFailure:         fromNull(row.LastFailure),
			LastError:           row.LastError,
			DisabledAt:          fromNull(row.DisabledAt),
		})
	}
	return entries, nil
}

// SaveHealth upserts every entry in a single transaction.
func (r *HealthRepository) SaveHealth(ctx context.Context, entries []domain.SourceHealth) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range entries {
		query, args, err := psql.
			Insert("source_health").
			Columns("source", "state", "consecutive_failures", "last_success", "last_failure",
				"last_error", "disabled_at", "updated_at").
			Values(h.Source, string(h.State), h.ConsecutiveFailures, toNull(h.LastSuccess),
				toNull(h.LastFailure), h.LastError, toNull(h.DisabledAt), time.Now().UTC()).
			Suffix(`ON CONFLICT (source) DO UPDATE SET
				state = EXCLUDED.state,
				consecutive_failures = EXCLUDED.consecutive_failures,
				last_success = EXCLUDED.last_success,
				last_failure = EXCLUDED.last_failure,
				last_error = EXCLUDED.last_error,
				disabled_at = EXCLUDED.disabled_at,
				updated_at = EXCLUDED.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert health %s: %w", h.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func toNull(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNull(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
