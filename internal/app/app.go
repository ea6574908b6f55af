package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/dedup"
	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/health"
	"NewsCrawler/internal/infrastructure/extract"
	"NewsCrawler/internal/infrastructure/fetch"
	"NewsCrawler/internal/infrastructure/httpapi"
	"NewsCrawler/internal/infrastructure/llm"
	"NewsCrawler/internal/infrastructure/metrics"
	"NewsCrawler/internal/infrastructure/ml"
	"NewsCrawler/internal/infrastructure/notify"
	"NewsCrawler/internal/infrastructure/parser"
	"NewsCrawler/internal/infrastructure/scheduler"
	"NewsCrawler/internal/infrastructure/statefile"
	"NewsCrawler/internal/infrastructure/storage"
	"NewsCrawler/internal/infrastructure/vector"
	"NewsCrawler/internal/logging"
	"NewsCrawler/internal/ports"
	"NewsCrawler/internal/ratelimit"
	"NewsCrawler/internal/scanner"
	"NewsCrawler/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	configPath string
	logger     *zap.Logger

	health       *health.Tracker
	limiter      *ratelimit.Limiter
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	state        *usecase.StateKeeper
	server       *httpapi.Server
	watcher      *config.Watcher
	registry     *prometheus.Registry

	closers []func(context.Context) error
}

// New connects to every configured backend and builds the crawler. configPath may be
// empty, in which case sources are never reloaded.
func New(ctx context.Context, cfg config.Config, configPath string, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sources, err := cfg.DomainSources()
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, configPath: configPath, logger: logger}
	checks := map[string]httpapi.Check{}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = storage.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		checks["postgres"] = db.PingContext
		if cfg.Database.Migrate {
			if err := storage.Migrate(db, logging.Component(logger, "migrate")); err != nil {
				return nil, err
			}
		}
	}

	store, err := a.buildStore(ctx, db)
	if err != nil {
		return nil, err
	}

	a.health = health.NewTracker(health.Config{
		DegradedAfter: cfg.Health.DegradedAfter,
		DisableAfter:  cfg.Health.DisableAfter,
		Cooldown:      cfg.Health.Cooldown,
	})

	index, memIndex, err := a.buildIndex(ctx, checks)
	if err != nil {
		return nil, err
	}

	a.state = a.buildState(db, memIndex)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsReporter := metrics.NewReporter(a.registry)
	reporters := usecase.NewReporters(logging.Component(logger, "report"),
		metricsReporter,
		a.state,
	)
	if cfg.Notifications.Telegram.BotToken != "" {
		reporters.Add(notify.NewTelegram(cfg.Notifications.Telegram))
	}
	if cfg.Notifications.Slack.WebhookURL != "" {
		reporters.Add(notify.NewSlack(cfg.Notifications.Slack))
	}

	fetcher := fetch.New(fetch.Options{
		UserAgent:     cfg.Extraction.UserAgent,
		MaxBodyBytes:  cfg.Extraction.MaxBodyBytes,
		RespectRobots: cfg.Extraction.RespectRobots,
		Logger:        logging.Component(logger, "fetch"),
	})
	discovery := scanner.NewRegistry(
		parser.NewFeedScanner(fetcher),
		parser.NewScrapeScanner(fetcher),
	)

	a.limiter = ratelimit.New(time.Second)
	a.limiter.Configure(sources)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Index:        index,
		Pacer:        a.limiter,
		Extractor:    extract.NewHTTPExtractor(fetcher, logging.Component(logger, "extract")),
		Cleaner:      llm.NewCleaner(cfg.Cleaner, logging.Component(logger, "cleaner")),
		Embedder:     ml.NewEmbedder(cfg.Embedder),
		Store:        store,
		Logger:       logging.Component(logger, "pipeline"),
		StoreTimeout: cfg.Storage.Timeout,
	})

	runner := usecase.NewSourceRunner(discovery, pipeline, a.health, logging.Component(logger, "runner"))

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Runner:      runner,
		Health:      a.health,
		Index:       index,
		Reporter:    reporters,
		Logger:      logging.Component(logger, "orchestrator"),
		Parallelism: cfg.Scheduler.Parallelism,
		CycleBudget: cfg.Scheduler.CycleBudget,
	})

	cadence, err := scheduler.FromConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	schedDeps := usecase.SchedulerDeps{
		Orchestrator: a.orchestrator,
		Cadence:      cadence,
		Sources:      sources,
		OnReload:     a.limiter.Configure,
		Logger:       logging.Component(logger, "scheduler"),
	}
	if cfg.Storage.Retention.MaxAge > 0 {
		schedDeps.Maintenance = usecase.NewRetention(usecase.RetentionDeps{
			Pruner:   store,
			Reporter: metricsReporter,
			MaxAge:   cfg.Storage.Retention.MaxAge,
			Interval: cfg.Storage.Retention.Interval,
			Logger:   logging.Component(logger, "retention"),
		})
	}
	if configPath != "" {
		a.watcher, err = config.NewWatcher(configPath, sources, logging.Component(logger, "config"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return a.watcher.Close() })
		schedDeps.Loader = a.watcher
	}
	a.scheduler = usecase.NewScheduler(schedDeps)

	a.server = httpapi.NewServer(httpapi.Deps{
		Address:  cfg.HTTP.Address,
		Health:   a.health,
		Cycles:   a.orchestrator,
		Sources:  a.scheduler,
		Checks:   checks,
		Gatherer: a.registry,
		Logger:   logging.Component(logger, "http"),
	})

	ok = true
	return a, nil
}

func (a *Application) buildStore(ctx context.Context, db *sqlx.DB) (*storage.MultiStore, error) {
	var stores []storage.NamedStore

	if a.cfg.Qdrant.URL != "" {
		qdrant := vector.NewQdrantStore(a.cfg.Qdrant, logging.Component(a.logger, "qdrant"))
		if err := qdrant.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		stores = append(stores, storage.NamedStore{Name: "qdrant", Store: qdrant})
	}
	if db != nil {
		stores = append(stores, storage.NamedStore{Name: "postgres", Store: storage.NewPostgresRepository(db)})
	}
	if a.cfg.Storage.Mongo.URI != "" {
		archive, err := storage.NewMongoArchive(ctx, a.cfg.Storage.Mongo)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, archive.Close)
		stores = append(stores, storage.NamedStore{Name: "mongo", Store: archive})
	}

	multi := storage.NewMultiStore(stores...)
	if multi.Len() == 0 {
		return nil, errors.New("no article store configured: set qdrant.url, database.dsn or storage.mongo.uri")
	}
	return multi, nil
}

func (a *Application) buildIndex(ctx context.Context, checks map[string]httpapi.Check) (ports.DuplicateIndex, *dedup.MemoryIndex, error) {
	opts := dedup.Options{
		Retention: a.cfg.Dedup.Retention,
		ClaimTTL:  a.cfg.Dedup.ClaimTTL,
	}

	if a.cfg.Dedup.Backend != "redis" {
		mem := dedup.NewMemoryIndex(opts)
		return mem, mem, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Address,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	index := dedup.NewRedisIndex(client, a.cfg.Dedup.KeyPrefix, opts)
	if err := index.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	checks["redis"] = index.Ping
	return index, nil, nil
}

// buildState persists health in Postgres when available, otherwise in the snapshot
// file. Fingerprints only need the file when the index lives in memory.
func (a *Application) buildState(db *sqlx.DB, memIndex *dedup.MemoryIndex) *usecase.StateKeeper {
	var (
		healthStore  ports.HealthStore
		fpSource     usecase.FingerprintSnapshotter
		fpStore      ports.FingerprintStore
		snapshotFile *statefile.Store
	)
	if a.cfg.State.File != "" {
		snapshotFile = statefile.New(a.cfg.State.File)
	}

	switch {
	case db != nil:
		healthStore = storage.NewHealthRepository(db)
	case snapshotFile != nil:
		healthStore = snapshotFile
	}
	if memIndex != nil && snapshotFile != nil {
		fpSource = memIndex
		fpStore = snapshotFile
	}

	return usecase.NewStateKeeper(a.health, healthStore, fpSource, fpStore, logging.Component(a.logger, "state"))
}

// Sources returns the currently scheduled sources.
func (a *Application) Sources() []domain.SourceConfig {
	return a.scheduler.Sources()
}

// Health exposes the tracker for status output.
func (a *Application) Health() *health.Tracker {
	return a.health
}

// RunOnce restores state and runs a single cycle.
func (a *Application) RunOnce(ctx context.Context) (*domain.CycleStats, error) {
	if err := a.state.Load(ctx); err != nil {
		a.logger.Warn("state restore incomplete", zap.Error(err))
	}
	stats := a.scheduler.RunOnce(ctx)
	if stats.Aborted {
		return stats, fmt.Errorf("cycle aborted: %s", stats.AbortReason)
	}
	return stats, nil
}

// Run restores state, then serves the status API and runs the scheduler loop until
// ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.state.Load(ctx); err != nil {
		a.logger.Warn("state restore incomplete", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		g.Go(func() error {
			a.watcher.Run(gctx)
			return nil
		})
	}
	if a.cfg.HTTP.Address != "" {
		g.Go(func() error { return a.server.Run(gctx) })
	}
	g.Go(func() error {
		err := a.scheduler.Run(gctx)
		if err == nil && ctx.Err() == nil {
			return errors.New("scheduler stopped unexpectedly")
		}
		return err
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases every backend connection.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
