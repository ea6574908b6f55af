package scanner

import (
	"context"
	"fmt"
	"sync"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// Scanner captures a single discovery strategy (feed, scrape).
type Scanner interface {
	Kind() domain.SourceKind
	Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error)
}

// Registry keeps a mapping from source kinds to their discovery strategies.
type Registry struct {
	mu       sync.RWMutex
	scanners map[domain.SourceKind]Scanner
}

var _ ports.Discoverer = (*Registry)(nil)

// NewRegistry builds a registry with the given strategies.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[domain.SourceKind]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns a scanner by kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}

// Discover dispatches to the strategy matching src.Kind and stamps the source name
// on every result. All failures are DiscoveryErrors.
func (r *Registry) Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error) {
	strategy, err := r.Resolve(src.Kind)
	if err != nil {
		return nil, domain.DiscoveryError(src.Name, err)
	}

	articles, err := strategy.Discover(ctx, src)
	if err != nil {
		return nil, domain.DiscoveryError(src.Name, err)
	}

	for i := range articles {
		if articles[i].Source == "" {
			articles[i].Source = src.Name
		}
	}
	return articles, nil
}
