package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
)

// Cadence yields the start time of the cycle following one that started at from.
type Cadence interface {
	Next(from time.Time) time.Time
}

// SourceLoader supplies a fresh source set before each cycle.
type SourceLoader interface {
	Sources(ctx context.Context) ([]domain.SourceConfig, error)
}

type cycleRunner interface {
	RunCycle(ctx context.Context, sources []domain.SourceConfig) *domain.CycleStats
}

type maintenanceTask interface {
	Due(now time.Time) bool
	Cleanup(ctx context.Context) (int64, error)
}

// SchedulerDeps wires the periodic driver.
type SchedulerDeps struct {
	Orchestrator cycleRunner
	Cadence      Cadence
	Sources      []domain.SourceConfig
	Loader       SourceLoader
	// OnReload runs after a reloaded source set has been accepted.
	OnReload func([]domain.SourceConfig)
	// Maintenance is checked after every cycle of Run and keeps its own cadence.
	Maintenance maintenanceTask
	Logger      *zap.Logger
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Scheduler runs cycles back to back on a fixed cadence. A cycle that overruns its slot
// is followed immediately by the next one.
type Scheduler struct {
	orchestrator cycleRunner
	cadence      Cadence
	loader       SourceLoader
	onReload     func([]domain.SourceConfig)
	maintenance  maintenanceTask
	logger       *zap.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	sources []domain.SourceConfig
}

// NewScheduler returns the periodic driver.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		orchestrator: deps.Orchestrator,
		cadence:      deps.Cadence,
		loader:       deps.Loader,
		onReload:     deps.OnReload,
		maintenance:  deps.Maintenance,
		logger:       deps.Logger,
		now:          deps.Now,
		sleep:        deps.Sleep,
		sources:      deps.Sources,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

// Sources returns the source set used by the latest cycle.
func (s *Scheduler) Sources() []domain.SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SourceConfig, len(s.sources))
	copy(out, s.sources)
	return out
}

// Run loops until ctx is cancelled. Failed or aborted cycles never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.orchestrator == nil || s.cadence == nil {
		return fmt.Errorf("scheduler is not configured")
	}

	for {
		cycleStart := s.now()
		s.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.maintain(ctx)

		wait := NextDelay(s.cadence.Next(cycleStart), s.now())
		s.logger.Info("next cycle scheduled", zap.Duration("in", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunOnce reloads sources if a loader is set and runs a single cycle.
func (s *Scheduler) RunOnce(ctx context.Context) *domain.CycleStats {
	s.reload(ctx)
	return s.orchestrator.RunCycle(ctx, s.Sources())
}

// maintain runs the maintenance task when it is due. Its errors are logged by the task
// and never stop the loop.
func (s *Scheduler) maintain(ctx context.Context) {
	if s.maintenance == nil || !s.maintenance.Due(s.now()) {
		return
	}
	_, _ = s.maintenance.Cleanup(ctx)
}

func (s *Scheduler) reload(ctx context.Context) {
	if s.loader == nil {
		return
	}

	sources, err := s.loader.Sources(ctx)
	if err == nil {
		err = domain.ValidateSources(sources)
	}
	if err != nil {
		s.logger.Warn("source reload failed, keeping previous set", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()

	if s.onReload != nil {
		s.onReload(sources)
	}
}

// NextDelay is how long to wait for the next slot; never negative.
func NextDelay(next, now time.Time) time.Duration {
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
