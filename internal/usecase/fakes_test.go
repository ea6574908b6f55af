package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsCrawler/internal/domain"
)

type fakeDiscoverer struct {
	mu       sync.Mutex
	articles map[string][]domain.ArticleMetadata
	errs     map[string]error
	calls    map[string]int
	panics   map[string]bool
	block    map[string]bool
}

func newFakeDiscoverer() *fakeDiscoverer {
	return &fakeDiscoverer{
		articles: map[string][]domain.ArticleMetadata{},
		errs:     map[string]error{},
		calls:    map[string]int{},
		panics:   map[string]bool{},
		block:    map[string]bool{},
	}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error) {
	f.mu.Lock()
	f.calls[src.Name]++
	err, articles, panics, block := f.errs[src.Name], f.articles[src.Name], f.panics[src.Name], f.block[src.Name]
	f.mu.Unlock()

	if panics {
		panic("parser exploded")
	}
	if block {
		<-ctx.Done()
		return nil, domain.DiscoveryError(src.Name, ctx.Err())
	}
	if err != nil {
		return nil, domain.DiscoveryError(src.Name, err)
	}
	out := make([]domain.ArticleMetadata, len(articles))
	copy(out, articles)
	return out, nil
}

func (f *fakeDiscoverer) Calls(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

type extractCall struct {
	source string
	url    string
	at     time.Time
}

type fakeExtractor struct {
	mu      sync.Mutex
	content map[string]string
	fail    map[string]int
	calls   []extractCall
	delay   time.Duration
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{content: map[string]string{}, fail: map[string]int{}}
}

func (f *fakeExtractor) Extract(ctx context.Context, src domain.SourceConfig, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, extractCall{source: src.Name, url: url, at: time.Now()})
	failures := f.fail[url]
	if failures > 0 {
		f.fail[url] = failures - 1
	}
	body, ok := f.content[url]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if failures > 0 {
		return "", errors.New("upstream returned 503")
	}
	if !ok {
		return fmt.Sprintf("full text of %s", url), nil
	}
	return body, nil
}

func (f *fakeExtractor) Calls(source string) []extractCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []extractCall
	for _, c := range f.calls {
		if c.source == source {
			out = append(out, c)
		}
	}
	return out
}

type fakeCleaner struct {
	mu   sync.Mutex
	fail int
}

func (f *fakeCleaner) Clean(_ context.Context, raw, category string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return "", errors.New("llm quota exceeded")
	}
	return "[" + category + "] " + raw, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.ArticleRecord
	vectors map[string][]float32
	fail    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]domain.ArticleRecord{}, vectors: map[string][]float32{}}
}

func (f *fakeStore) Store(_ context.Context, record domain.ArticleRecord, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("qdrant unavailable")
	}
	f.records[record.Fingerprint] = record
	f.vectors[record.Fingerprint] = vector
	return nil
}

func (f *fakeStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// brokenIndex fails every operation as a corrupted or unreachable index would.
type brokenIndex struct{}

var errIndexDown = errors.New("index unreachable")

func (brokenIndex) IsDuplicate(context.Context, string) (bool, error) { return false, errIndexDown }
func (brokenIndex) Record(context.Context, string, time.Time) error   { return errIndexDown }
func (brokenIndex) Claim(context.Context, string) (bool, error)       { return false, errIndexDown }
func (brokenIndex) Commit(context.Context, string, time.Time) error   { return errIndexDown }
func (brokenIndex) Release(context.Context, string) error             { return errIndexDown }
func (brokenIndex) Sweep(context.Context, time.Time) (int, error)     { return 0, nil }

type recordingReporter struct {
	mu    sync.Mutex
	stats []*domain.CycleStats
	err   error
}

func (r *recordingReporter) ReportCycle(_ context.Context, stats *domain.CycleStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stats)
	return r.err
}

func (r *recordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

func article(source string, n int) domain.ArticleMetadata {
	return domain.ArticleMetadata{
		Source: source,
		URL:    fmt.Sprintf("https://%s.example.com/news/%d", source, n),
		Title:  fmt.Sprintf("%s headline %d", source, n),
	}
}
