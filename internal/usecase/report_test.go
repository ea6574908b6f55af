package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/health"
)

type panickingReporter struct{}

func (panickingReporter) ReportCycle(context.Context, *domain.CycleStats) error {
	panic("webhook client nil")
}

func TestReportersIsolateSinks(t *testing.T) {
	t.Parallel()

	failing := &recordingReporter{err: errors.New("slack 500")}
	healthy := &recordingReporter{}
	reporters := NewReporters(nil, failing, nil, panickingReporter{}, healthy)

	err := reporters.ReportCycle(context.Background(), &domain.CycleStats{ID: "c"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "slack 500")
	assert.ErrorContains(t, err, "panicked")
	assert.Equal(t, 1, failing.Count())
	assert.Equal(t, 1, healthy.Count())
}

type memoryHealthStore struct{ entries []domain.SourceHealth }

func (m *memoryHealthStore) LoadHealth(context.Context) ([]domain.SourceHealth, error) {
	return m.entries, nil
}

func (m *memoryHealthStore) SaveHealth(_ context.Context, entries []domain.SourceHealth) error {
	m.entries = entries
	return nil
}

type memoryFingerprintStore struct{ entries map[string]time.Time }

func (m *memoryFingerprintStore) LoadFingerprints(context.Context) (map[string]time.Time, error) {
	return m.entries, nil
}

func (m *memoryFingerprintStore) SaveFingerprints(_ context.Context, entries map[string]time.Time) error {
	m.entries = entries
	return nil
}

var healthCfgForState = health.Config{DegradedAfter: 3, DisableAfter: 2}

func TestStateKeeperRoundTrip(t *testing.T) {
	t.Parallel()

	h := newCrawlHarness(healthCfgForState, 0, 0)
	meta := article("a", 1)
	require.NoError(t, h.index.Record(context.Background(), meta.Fingerprint(), time.Now()))
	h.tracker.RecordOutcome("a", false, errors.New("dns"))

	hs, fs := &memoryHealthStore{}, &memoryFingerprintStore{}
	keeper := NewStateKeeper(h.tracker, hs, h.index, fs, nil)
	require.NoError(t, keeper.ReportCycle(context.Background(), &domain.CycleStats{}))
	require.Len(t, hs.entries, 1)
	require.Len(t, fs.entries, 1)

	fresh := newCrawlHarness(healthCfgForState, 0, 0)
	require.NoError(t, NewStateKeeper(fresh.tracker, hs, fresh.index, fs, nil).Load(context.Background()))
	assert.Equal(t, 1, fresh.tracker.Health("a").ConsecutiveFailures)

	dup, err := fresh.index.IsDuplicate(context.Background(), meta.Fingerprint())
	require.NoError(t, err)
	assert.True(t, dup)
}
