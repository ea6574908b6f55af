package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"NewsCrawler/internal/ports"
)

// BackendPruner deletes expired articles from every storage backend, returning the
// per-backend counts of those that succeeded.
type BackendPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (map[string]int64, error)
}

// RetentionDeps wires the periodic cleanup of stored articles.
type RetentionDeps struct {
	Pruner   BackendPruner
	Reporter ports.DeletionReporter
	// MaxAge is how long an article is kept after it was crawled; zero disables cleanup.
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// Retention removes articles crawled more than MaxAge ago. It is driven by the
// scheduler goroutine and is not safe for concurrent use.
type Retention struct {
	pruner   BackendPruner
	reporter ports.DeletionReporter
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	last time.Time
}

// NewRetention returns the cleanup task.
func NewRetention(deps RetentionDeps) *Retention {
	r := &Retention{
		pruner:   deps.Pruner,
		reporter: deps.Reporter,
		maxAge:   deps.MaxAge,
		interval: deps.Interval,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.interval <= 0 {
		r.interval = 24 * time.Hour
	}
	return r
}

// Due is true when cleanup is enabled and no pass started within the last interval.
// The first check after start is always due.
func (r *Retention) Due(now time.Time) bool {
	if r.pruner == nil || r.maxAge <= 0 {
		return false
	}
	return r.last.IsZero() || now.Sub(r.last) >= r.interval
}

// Cleanup runs one pass and returns the number of deleted articles across backends.
// A failed pass still waits a full interval before the next one.
func (r *Retention) Cleanup(ctx context.Context) (int64, error) {
	now := r.now()
	r.last = now
	cutoff := now.Add(-r.maxAge)

	deleted, err := r.pruner.Prune(ctx, cutoff)

	var total int64
	for backend, n := range deleted {
		total += n
		if r.reporter != nil {
			r.reporter.ReportDeleted(backend, n)
		}
	}

	fields := []zap.Field{zap.Time("cutoff", cutoff), zap.Int64("deleted", total)}
	for backend, n := range deleted {
		fields = append(fields, zap.Int64(backend, n))
	}
	if err != nil {
		r.logger.Warn("retention pass incomplete", append(fields, zap.Error(err))...)
		return total, err
	}
	r.logger.Info("retention pass finished", fields...)
	return total, nil
}
