package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// SourceRunner drives one source through discovery and the per-article pipeline.
type SourceRunner struct {
	discoverer ports.Discoverer
	pipeline   *Pipeline
	health     ports.HealthTracker
	logger     *zap.Logger
	now        func() time.Time
}

// NewSourceRunner wires the runner collaborators.
func NewSourceRunner(discoverer ports.Discoverer, pipeline *Pipeline, health ports.HealthTracker, logger *zap.Logger) *SourceRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceRunner{
		discoverer: discoverer,
		pipeline:   pipeline,
		health:     health,
		logger:     logger,
		now:        time.Now,
	}
}

// Run processes one source and returns its tally. Article failures stay inside the
// tally; the returned error is non-nil only for fatal duplicate index failures.
func (r *SourceRunner) Run(ctx context.Context, src domain.SourceConfig) (domain.SourceTally, error) {
	start := r.now()
	tally := domain.SourceTally{Source: src.Name}
	logger := r.logger.With(zap.String("source", src.Name))

	discoverCtx, cancel := withOptionalTimeout(ctx, src.Timeout)
	articles, err := r.discoverer.Discover(discoverCtx, src)
	cancel()
	if err != nil {
		tally.Duration = r.now().Sub(start)
		if cancelledExternally(ctx) {
			// Cancelled from outside the source: health stays as it is.
			tally.Cancelled = true
			tally.SourceError = err.Error()
			tally.HealthState = r.health.CurrentState(src.Name)
			logger.Warn("discovery cancelled", zap.Error(err), zap.NamedError("cause", context.Cause(ctx)))
			return tally, nil
		}
		tally.SourceFailed = true
		tally.SourceError = err.Error()
		tally.HealthState = r.health.RecordOutcome(src.Name, false, err).State
		logger.Warn("discovery failed", zap.Error(err), zap.String("health", string(tally.HealthState)))
		return tally, nil
	}

	tally.Discovered = len(articles)
	if src.MaxArticles > 0 && len(articles) > src.MaxArticles {
		articles = articles[:src.MaxArticles]
	}
	logger.Debug("discovered articles", zap.Int("discovered", tally.Discovered), zap.Int("selected", len(articles)))

	for i, meta := range articles {
		if ctx.Err() != nil {
			for _, rest := range articles[i:] {
				tally.Add(domain.ProcessingResult{
					Source: src.Name,
					URL:    rest.URL,
					Status: domain.StatusFailed,
					Reason: domain.ReasonCancelled,
					Err:    ctx.Err(),
				})
			}
			logger.Warn("source run cancelled", zap.Int("remaining", len(articles)-i), zap.Error(ctx.Err()))
			break
		}

		result, err := r.pipeline.Process(ctx, src, meta)
		if err != nil {
			tally.Failed++
			tally.Duration = r.now().Sub(start)
			return tally, err
		}
		tally.Add(result)
	}

	tally.HealthState = r.health.RecordOutcome(src.Name, true, nil).State
	tally.Duration = r.now().Sub(start)
	logger.Info("source run finished",
		zap.Int("processed", tally.Processed),
		zap.Int("failed", tally.Failed),
		zap.Int("skipped_duplicate", tally.SkippedDuplicate),
		zap.Duration("duration", tally.Duration))
	return tally, nil
}

// cancelledExternally reports whether ctx ended for a reason other than the cycle
// budget. Running out of budget still counts against the source.
func cancelledExternally(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	return !errors.Is(context.Cause(ctx), errCycleBudget)
}
