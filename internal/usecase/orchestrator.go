package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const reportTimeout = 15 * time.Second

// errCycleBudget is the cancellation cause of runners still going when the cycle budget
// runs out.
var errCycleBudget = errors.New("cycle budget exceeded")

// sourceRunner is the per-source unit the orchestrator fans out to.
type sourceRunner interface {
	Run(ctx context.Context, src domain.SourceConfig) (domain.SourceTally, error)
}

// OrchestratorDeps wires the cycle orchestrator.
type OrchestratorDeps struct {
	Runner   sourceRunner
	Health   ports.HealthTracker
	Index    ports.DuplicateIndex
	Reporter ports.CycleReporter
	Logger   *zap.Logger
	// Parallelism bounds concurrent source runs; zero runs every source at once.
	Parallelism int
	// CycleBudget cancels runners still going after this long; zero disables the budget.
	CycleBudget time.Duration
	Now         func() time.Time
}

// Orchestrator runs one cycle over all sources and aggregates CycleStats.
type Orchestrator struct {
	runner      sourceRunner
	health      ports.HealthTracker
	index       ports.DuplicateIndex
	reporter    ports.CycleReporter
	logger      *zap.Logger
	parallelism int
	budget      time.Duration
	now         func() time.Time
	last        atomic.Pointer[domain.CycleStats]
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		runner:      deps.Runner,
		health:      deps.Health,
		index:       deps.Index,
		reporter:    deps.Reporter,
		logger:      deps.Logger,
		parallelism: deps.Parallelism,
		budget:      deps.CycleBudget,
		now:         deps.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// LastCycle returns the stats of the most recent finished cycle, or nil.
func (o *Orchestrator) LastCycle() *domain.CycleStats {
	return o.last.Load()
}

// RunCycle executes one cycle. It never fails: source failures land in the stats and a
// fatal duplicate index error marks the stats aborted.
func (o *Orchestrator) RunCycle(ctx context.Context, sources []domain.SourceConfig) *domain.CycleStats {
	stats := &domain.CycleStats{ID: uuid.NewString(), StartedAt: o.now()}
	logger := o.logger.With(zap.String("cycle_id", stats.ID))
	logger.Info("cycle started", zap.Int("sources", len(sources)))

	if o.index != nil {
		removed, err := o.index.Sweep(ctx, stats.StartedAt)
		if err != nil {
			o.abort(stats, logger, fmt.Errorf("sweep duplicate index: %w", err))
			return o.finish(ctx, stats, logger)
		}
		if removed > 0 {
			logger.Debug("swept duplicate index", zap.Int("removed", removed))
		}
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	if o.budget > 0 {
		cycleCtx, cancel = context.WithTimeoutCause(ctx, o.budget, errCycleBudget)
	}
	defer cancel()

	group, groupCtx := errgroup.WithContext(cycleCtx)
	if o.parallelism > 0 {
		group.SetLimit(o.parallelism)
	}

	tallies := make([]domain.SourceTally, len(sources))
	for i, src := range sources {
		if o.health.CurrentState(src.Name) == domain.HealthDisabled {
			tallies[i] = domain.SourceTally{
				Source:          src.Name,
				SkippedDisabled: true,
				HealthState:     domain.HealthDisabled,
			}
			logger.Info("skipping disabled source", zap.String("source", src.Name))
			continue
		}

		i, src := i, src
		group.Go(func() error {
			tally, err := o.runIsolated(groupCtx, src)
			tallies[i] = tally
			return err
		})
	}

	if err := group.Wait(); err != nil {
		o.abort(stats, logger, err)
	}
	if cycleCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		logger.Warn("cycle budget exceeded, stragglers cancelled", zap.Duration("budget", o.budget))
	}

	stats.Sources = tallies
	return o.finish(ctx, stats, logger)
}

// runIsolated turns a panicking runner into a failed source tally.
func (o *Orchestrator) runIsolated(ctx context.Context, src domain.SourceConfig) (tally domain.SourceTally, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			panicErr := fmt.Errorf("source runner panicked: %v", rec)
			o.logger.Error("source runner panicked",
				zap.String("source", src.Name),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			tally = domain.SourceTally{
				Source:       src.Name,
				SourceFailed: true,
				SourceError:  panicErr.Error(),
				HealthState:  o.health.RecordOutcome(src.Name, false, panicErr).State,
			}
			err = nil
		}
	}()
	return o.runner.Run(ctx, src)
}

func (o *Orchestrator) abort(stats *domain.CycleStats, logger *zap.Logger, err error) {
	stats.Aborted = true
	stats.AbortReason = err.Error()
	logger.Error("cycle aborted: duplicate index failure, dedup guarantees cannot be upheld", zap.Error(err))
}

func (o *Orchestrator) finish(ctx context.Context, stats *domain.CycleStats, logger *zap.Logger) *domain.CycleStats {
	stats.FinishedAt = o.now()
	o.last.Store(stats)

	totals := stats.Totals()
	logger.Info("cycle finished",
		zap.Duration("duration", stats.Duration()),
		zap.Int("processed", totals.Processed),
		zap.Int("failed", totals.Failed),
		zap.Int("skipped_duplicate", totals.SkippedDuplicate),
		zap.Float64("success_rate", totals.SuccessRate()),
		zap.Strings("failed_sources", stats.FailedSources()),
		zap.Strings("disabled_sources", stats.DisabledSources()),
		zap.Bool("aborted", stats.Aborted))
	if totals.DataLoss > 0 {
		logger.Error("articles lost after dedup barrier", zap.Int("count", totals.DataLoss))
	}

	if o.reporter != nil {
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		if err := o.reporter.ReportCycle(reportCtx, stats); err != nil {
			logger.Warn("report cycle", zap.Error(err))
		}
	}
	return stats
}
