package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind selects the discovery strategy for a source.
type SourceKind string

const (
	KindFeed   SourceKind = "feed"
	KindScrape SourceKind = "scrape"
)

// ParseSourceKind accepts the config spellings (feed, FEED, rss, scrape, SCRAPE, html).
func ParseSourceKind(value string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "feed", "rss", "atom":
		return KindFeed, nil
	case "scrape", "html":
		return KindScrape, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", value)
	}
}

// Selectors are the optional structural hints used by scrape discovery and extraction.
type Selectors struct {
	Article string
	Link    string
	Title   string
	Date    string
	Content string
}

// SourceConfig describes one configured news origin. Values are treated as immutable
// once loaded; a reload produces a fresh slice.
type SourceConfig struct {
	Name        string
	Kind        SourceKind
	Endpoint    string
	RateLimit   time.Duration
	MaxArticles int
	Timeout     time.Duration
	Category    string
	Selectors   Selectors
	Headers     map[string]string
}

// Validate checks the per-source invariants.
func (s SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is empty")
	}
	if s.Kind != KindFeed && s.Kind != KindScrape {
		return fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind)
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("source %s: endpoint is empty", s.Name)
	}
	if s.RateLimit <= 0 {
		return fmt.Errorf("source %s: rate limit must be positive", s.Name)
	}
	if s.MaxArticles < 0 {
		return fmt.Errorf("source %s: max articles must not be negative", s.Name)
	}
	return nil
}

// ValidateSources checks every source and enforces name uniqueness across the set.
func ValidateSources(sources []SourceConfig) error {
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if _, ok := seen[src.Name]; ok {
			return fmt.Errorf("duplicate source name %s", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}
