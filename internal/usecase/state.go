package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// HealthSnapshotter is implemented by the health tracker.
type HealthSnapshotter interface {
	Snapshot() []domain.SourceHealth
	Restore(entries []domain.SourceHealth)
}

// FingerprintSnapshotter is implemented by in-process duplicate indexes.
type FingerprintSnapshotter interface {
	Snapshot() map[string]time.Time
	Restore(entries map[string]time.Time) (int, error)
}

// StateKeeper loads persisted health and fingerprints at start-up and saves them after
// every cycle. Either side may be nil; the crawler then runs with a cold cache.
type StateKeeper struct {
	health       HealthSnapshotter
	healthStore  ports.HealthStore
	fingerprints FingerprintSnapshotter
	fpStore      ports.FingerprintStore
	logger       *zap.Logger
}

var _ ports.CycleReporter = (*StateKeeper)(nil)

// NewStateKeeper wires snapshot sources to their stores.
func NewStateKeeper(
	health HealthSnapshotter,
	healthStore ports.HealthStore,
	fingerprints FingerprintSnapshotter,
	fpStore ports.FingerprintStore,
	logger *zap.Logger,
) *StateKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateKeeper{
		health:       health,
		healthStore:  healthStore,
		fingerprints: fingerprints,
		fpStore:      fpStore,
		logger:       logger,
	}
}

// Load restores persisted state. Load errors are returned after applying what could
// be read.
func (k *StateKeeper) Load(ctx context.Context) error {
	if k.health != nil && k.healthStore != nil {
		entries, err := k.healthStore.LoadHealth(ctx)
		if err != nil {
			return fmt.Errorf("load health: %w", err)
		}
		k.health.Restore(entries)
		k.logger.Info("restored source health", zap.Int("sources", len(entries)))
	}

	if k.fingerprints != nil && k.fpStore != nil {
		entries, err := k.fpStore.LoadFingerprints(ctx)
		if err != nil {
			return fmt.Errorf("load fingerprints: %w", err)
		}
		loaded, err := k.fingerprints.Restore(entries)
		k.logger.Info("restored fingerprints", zap.Int("loaded", loaded))
		if err != nil {
			return fmt.Errorf("restore fingerprints: %w", err)
		}
	}
	return nil
}

// Save persists the current state.
func (k *StateKeeper) Save(ctx context.Context) error {
	if k.health != nil && k.healthStore != nil {
		if err := k.healthStore.SaveHealth(ctx, k.health.Snapshot()); err != nil {
			return fmt.Errorf("save health: %w", err)
		}
	}
	if k.fingerprints != nil && k.fpStore != nil {
		if err := k.fpStore.SaveFingerprints(ctx, k.fingerprints.Snapshot()); err != nil {
			return fmt.Errorf("save fingerprints: %w", err)
		}
	}
	return nil
}

// ReportCycle saves state once a cycle has finished.
func (k *StateKeeper) ReportCycle(ctx context.Context, _ *domain.CycleStats) error {
	return k.Save(ctx)
}
