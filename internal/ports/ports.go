package ports

import (
	"context"
	"time"

	"NewsCrawler/internal/domain"
)

// Discoverer lists candidate articles of a source without fetching their content.
type Discoverer interface {
	Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error)
}

// Extractor fetches the full text behind an article URL.
type Extractor interface {
	Extract(ctx context.Context, src domain.SourceConfig, url string) (string, error)
}

// Cleaner turns raw extracted text into publishable content (e.g., via an LLM).
type Cleaner interface {
	Clean(ctx context.Context, raw, category string) (string, error)
}

// Embedder computes the semantic vector of cleaned content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ArticleStore persists a cleaned article; repeated calls with one fingerprint must be idempotent.
type ArticleStore interface {
	Store(ctx context.Context, record domain.ArticleRecord, vector []float32) error
}

// ArticlePruner deletes stored articles crawled before cutoff and reports how many went.
type ArticlePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DuplicateIndex is the set of seen fingerprints with a retention window.
// Claim, Commit and Release make check-then-record atomic per fingerprint.
type DuplicateIndex interface {
	IsDuplicate(ctx context.Context, fingerprint string) (bool, error)
	Record(ctx context.Context, fingerprint string, seenAt time.Time) error
	Claim(ctx context.Context, fingerprint string) (bool, error)
	Commit(ctx context.Context, fingerprint string, seenAt time.Time) error
	Release(ctx context.Context, fingerprint string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Pacer gates per-source request pacing.
type Pacer interface {
	Acquire(ctx context.Context, source string) error
}

// HealthTracker owns per-source health state.
type HealthTracker interface {
	CurrentState(source string) domain.HealthState
	RecordOutcome(source string, success bool, err error) domain.SourceHealth
}

// CycleReporter receives finished cycle statistics. Errors never affect the pipeline.
type CycleReporter interface {
	ReportCycle(ctx context.Context, stats *domain.CycleStats) error
}

// DeletionReporter counts articles removed by retention, per backend.
type DeletionReporter interface {
	ReportDeleted(backend string, n int64)
}

// HealthStore persists source health between restarts.
type HealthStore interface {
	LoadHealth(ctx context.Context) ([]domain.SourceHealth, error)
	SaveHealth(ctx context.Context, entries []domain.SourceHealth) error
}

// FingerprintStore persists the in-memory duplicate index between restarts.
type FingerprintStore interface {
	LoadFingerprints(ctx context.Context) (map[string]time.Time, error)
	SaveFingerprints(ctx context.Context, entries map[string]time.Time) error
}
