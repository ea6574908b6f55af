package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const defaultStoreTimeout = 30 * time.Second

// PipelineDeps wires the driven adapters into the article pipeline.
type PipelineDeps struct {
	Index     ports.DuplicateIndex
	Pacer     ports.Pacer
	Extractor ports.Extractor
	Cleaner   ports.Cleaner
	Embedder  ports.Embedder
	Store     ports.ArticleStore
	Logger    *zap.Logger
	// StoreTimeout bounds the embed and store calls individually.
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Pipeline drives one article from metadata to a terminal ProcessingResult.
type Pipeline struct {
	index        ports.DuplicateIndex
	pacer        ports.Pacer
	extractor    ports.Extractor
	cleaner      ports.Cleaner
	embedder     ports.Embedder
	store        ports.ArticleStore
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
	stages       []stage
}

// articleRun is the state carried between stages.
type articleRun struct {
	src       domain.SourceConfig
	meta      domain.ArticleMetadata
	result    domain.ProcessingResult
	claimed   bool
	committed bool
	raw       string
	cleaned   string
	vector    []float32
}

// stageResult is either terminal (the run stops with result) or carries on to the next stage.
type stageResult struct {
	terminal bool
	result   domain.ProcessingResult
}

// stage returns a fatal error only for duplicate index failures.
type stage struct {
	name string
	run  func(ctx context.Context, r *articleRun) (stageResult, error)
}

func next() (stageResult, error) { return stageResult{}, nil }

func finish(r *articleRun, status domain.ProcessingStatus, reason domain.FailureReason, err error) (stageResult, error) {
	res := r.result
	res.Status = status
	res.Reason = reason
	res.Err = err
	return stageResult{terminal: true, result: res}, nil
}

// NewPipeline constructs the pipeline with its fixed stage order.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		index:        deps.Index,
		pacer:        deps.Pacer,
		extractor:    deps.Extractor,
		cleaner:      deps.Cleaner,
		embedder:     deps.Embedder,
		store:        deps.Store,
		logger:       deps.Logger,
		storeTimeout: deps.StoreTimeout,
		now:          deps.Now,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.storeTimeout <= 0 {
		p.storeTimeout = defaultStoreTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}

	p.stages = []stage{
		{name: "claim", run: p.claimStage},
		{name: "extract", run: p.extractStage},
		{name: "clean", run: p.cleanStage},
		{name: "commit", run: p.commitStage},
		{name: "embed", run: p.embedStage},
		{name: "store", run: p.storeStage},
	}
	return p
}

// Process runs every stage in order until one is terminal. The error is non-nil only
// when the duplicate index failed; the caller must then abort the cycle.
func (p *Pipeline) Process(ctx context.Context, src domain.SourceConfig, meta domain.ArticleMetadata) (domain.ProcessingResult, error) {
	start := p.now()
	run := &articleRun{
		src:  src,
		meta: meta,
		result: domain.ProcessingResult{
			Source:      src.Name,
			URL:         meta.URL,
			Fingerprint: meta.Fingerprint(),
			StartedAt:   start,
		},
	}

	var (
		outcome stageResult
		err     error
	)
	for _, st := range p.stages {
		outcome, err = st.run(ctx, run)
		if err != nil {
			p.logger.Error("duplicate index failure",
				zap.String("source", src.Name),
				zap.String("stage", st.name),
				zap.String("fingerprint", run.result.Fingerprint),
				zap.Error(err))
			p.releaseClaim(ctx, run)
			run.result.Status = domain.StatusFailed
			run.result.Err = err
			run.result.Duration = p.now().Sub(start)
			return run.result, err
		}
		if outcome.terminal {
			break
		}
	}
	if !outcome.terminal {
		outcome, _ = finish(run, domain.StatusProcessed, "", nil)
	}

	result := outcome.result
	result.Duration = p.now().Sub(start)
	if result.Status == domain.StatusFailed {
		result.DataLoss = run.committed
		p.releaseClaim(ctx, run)
	}
	p.logResult(result)
	return result, nil
}

func (p *Pipeline) claimStage(ctx context.Context, r *articleRun) (stageResult, error) {
	fresh, err := p.index.Claim(ctx, r.result.Fingerprint)
	if err != nil {
		return stageResult{}, asDuplicateError(r.src.Name, err)
	}
	if !fresh {
		return finish(r, domain.StatusSkippedDuplicate, "", nil)
	}
	r.claimed = true
	return next()
}

func (p *Pipeline) extractStage(ctx context.Context, r *articleRun) (stageResult, error) {
	if p.pacer != nil {
		if err := p.pacer.Acquire(ctx, r.src.Name); err != nil {
			return finish(r, domain.StatusFailed, domain.ReasonCancelled, err)
		}
	}

	extractCtx, cancel := withOptionalTimeout(ctx, r.src.Timeout)
	defer cancel()

	raw, err := p.extractor.Extract(extractCtx, r.src, r.meta.URL)
	if err != nil {
		if ctx.Err() != nil {
			return finish(r, domain.StatusFailed, domain.ReasonCancelled, err)
		}
		return finish(r, domain.StatusFailed, domain.ReasonExtraction, domain.ExtractionError(r.src.Name, err))
	}

	r.raw = strings.TrimSpace(raw)
	if r.raw == "" {
		return finish(r, domain.StatusFailed, domain.ReasonEmpty, domain.ExtractionError(r.src.Name, errors.New("empty content")))
	}
	return next()
}

func (p *Pipeline) cleanStage(ctx context.Context, r *articleRun) (stageResult, error) {
	if p.cleaner == nil {
		r.cleaned = r.raw
		return next()
	}

	cleaned, err := p.cleaner.Clean(ctx, r.raw, r.src.Category)
	if err != nil {
		if ctx.Err() != nil {
			return finish(r, domain.StatusFailed, domain.ReasonCancelled, err)
		}
		return finish(r, domain.StatusFailed, domain.ReasonCleaning, domain.CleaningError(r.src.Name, err))
	}

	r.cleaned = strings.TrimSpace(cleaned)
	if r.cleaned == "" {
		return finish(r, domain.StatusFailed, domain.ReasonCleaning, domain.CleaningError(r.src.Name, errors.New("cleaner returned empty content")))
	}
	return next()
}

// commitStage is the point of no return: from here on the article is never retried.
func (p *Pipeline) commitStage(ctx context.Context, r *articleRun) (stageResult, error) {
	if err := p.index.Commit(context.WithoutCancel(ctx), r.result.Fingerprint, p.now()); err != nil {
		return stageResult{}, asDuplicateError(r.src.Name, err)
	}
	r.committed = true
	return next()
}

func (p *Pipeline) embedStage(ctx context.Context, r *articleRun) (stageResult, error) {
	if p.embedder == nil {
		return next()
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(embedCtx, r.cleaned)
	if err != nil {
		return finish(r, domain.StatusFailed, domain.ReasonEmbedding, domain.EmbeddingError(r.src.Name, err))
	}
	r.vector = vector
	return next()
}

func (p *Pipeline) storeStage(ctx context.Context, r *articleRun) (stageResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	record := domain.ArticleRecord{
		Fingerprint: r.result.Fingerprint,
		Source:      r.src.Name,
		Category:    r.src.Category,
		URL:         r.meta.URL,
		Title:       r.meta.Title,
		PublishedAt: r.meta.PublishedAt,
		Tags:        r.meta.Tags,
		RawContent:  r.raw,
		Content:     r.cleaned,
		CrawledAt:   p.now(),
	}
	if err := p.store.Store(storeCtx, record, r.vector); err != nil {
		return finish(r, domain.StatusFailed, domain.ReasonStorage, domain.StorageError(r.src.Name, err))
	}
	return finish(r, domain.StatusProcessed, "", nil)
}

// releaseClaim frees an uncommitted claim so a later cycle may retry the article.
func (p *Pipeline) releaseClaim(ctx context.Context, r *articleRun) {
	if !r.claimed || r.committed {
		return
	}
	r.claimed = false
	if err := p.index.Release(context.WithoutCancel(ctx), r.result.Fingerprint); err != nil {
		p.logger.Warn("release fingerprint claim",
			zap.String("source", r.src.Name),
			zap.String("fingerprint", r.result.Fingerprint),
			zap.Error(err))
	}
}

func (p *Pipeline) logResult(result domain.ProcessingResult) {
	fields := []zap.Field{
		zap.String("source", result.Source),
		zap.String("url", result.URL),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
	}
	switch {
	case result.DataLoss:
		p.logger.Error("article lost after dedup barrier",
			append(fields, zap.String("reason", string(result.Reason)), zap.Error(result.Err))...)
	case result.Status == domain.StatusFailed:
		p.logger.Warn("article failed",
			append(fields, zap.String("reason", string(result.Reason)), zap.Error(result.Err))...)
	default:
		p.logger.Debug("article done", fields...)
	}
}

func asDuplicateError(source string, err error) error {
	if errors.Is(err, domain.ErrDuplicate) {
		return err
	}
	return domain.DuplicateError(source, err)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
