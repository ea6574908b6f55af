package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// NamedStore labels a backend for error messages.
type NamedStore struct {
	Name  string
	Store ports.ArticleStore
}

// MultiStore writes every article to all backends in order. Backends are
// idempotent per fingerprint, so a partial failure is safe to repeat.
type MultiStore struct {
	stores []NamedStore
}

var _ ports.ArticleStore = (*MultiStore)(nil)

// NewMultiStore skips entries without a store.
func NewMultiStore(stores ...NamedStore) *MultiStore {
	m := &MultiStore{}
	for _, s := range stores {
		if s.Store != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// Len reports the number of configured backends.
func (m *MultiStore) Len() int {
	return len(m.stores)
}

// Store returns the joined errors of every failed backend.
func (m *MultiStore) Store(ctx context.Context, record domain.ArticleRecord, vector []float32) error {
	if len(m.stores) == 0 {
		return errors.New("no article store configured")
	}

	var errs []error
	for _, s := range m.stores {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Store.Store(ctx, record, vector); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Prune deletes articles crawled before cutoff from every backend that supports it.
// Counts are keyed by backend name; failed backends are missing from the map and
// their errors are joined.
func (m *MultiStore) Prune(ctx context.Context, cutoff time.Time) (map[string]int64, error) {
	deleted := make(map[string]int64, len(m.stores))
	var errs []error
	for _, s := range m.stores {
		pruner, ok := s.Store.(ports.ArticlePruner)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := pruner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		deleted[s.Name] = n
	}
	return deleted, errors.Join(errs...)
}
