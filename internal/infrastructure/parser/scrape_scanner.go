package parser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/infrastructure/fetch"
	"NewsCrawler/internal/scanner"
)

const (
	defaultArticleSelector = "article"
	defaultLinkSelector    = "a[href]"
	fallbackTitleSelector  = "h1, h2, h3, h4"
)

// ScrapeScanner discovers articles on HTML listing pages using CSS selectors.
type ScrapeScanner struct {
	fetcher *fetch.Fetcher
}

var _ scanner.Scanner = (*ScrapeScanner)(nil)

// NewScrapeScanner wires the shared fetcher.
func NewScrapeScanner(fetcher *fetch.Fetcher) *ScrapeScanner {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{})
	}
	return &ScrapeScanner{fetcher: fetcher}
}

// Kind identifies the strategy inside the registry.
func (s *ScrapeScanner) Kind() domain.SourceKind {
	return domain.KindScrape
}

// Discover fetches the listing page and returns one entry per matched article block.
func (s *ScrapeScanner) Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error) {
	doc, _, err := s.fetcher.Document(ctx, src.Endpoint, src.Headers)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(src.Endpoint)
	return extractEntries(doc, src, base), nil
}

func extractEntries(doc *goquery.Document, src domain.SourceConfig, base *url.URL) []domain.ArticleMetadata {
	articleSel := orDefault(src.Selectors.Article, defaultArticleSelector)
	linkSel := orDefault(src.Selectors.Link, defaultLinkSelector)

	var (
		collected []domain.ArticleMetadata
		seen      = map[string]struct{}{}
	)

	doc.Find(articleSel).Each(func(_ int, block *goquery.Selection) {
		meta, ok := parseEntry(block, src, linkSel, base)
		if !ok {
			return
		}
		key := domain.CanonicalURL(meta.URL)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		collected = append(collected, meta)
	})

	return collected
}

func parseEntry(block *goquery.Selection, src domain.SourceConfig, linkSel string, base *url.URL) (domain.ArticleMetadata, bool) {
	link := block
	if !block.Is(linkSel) {
		link = block.Find(linkSel).First()
	}
	href, exists := link.Attr("href")
	if !exists {
		return domain.ArticleMetadata{}, false
	}
	href = resolveLink(base, href)
	if href == "" {
		return domain.ArticleMetadata{}, false
	}

	var title string
	if src.Selectors.Title != "" {
		title = collapseSpace(block.Find(src.Selectors.Title).First().Text())
	}
	if title == "" {
		title = collapseSpace(link.Text())
	}
	if title == "" {
		title = collapseSpace(block.Find(fallbackTitleSelector).First().Text())
	}

	meta := domain.ArticleMetadata{
		Source: src.Name,
		URL:    href,
		Title:  title,
	}
	if src.Selectors.Date != "" {
		meta.PublishedAt = parseDateSelection(block.Find(src.Selectors.Date).First())
	} else {
		meta.PublishedAt = parseDateSelection(block.Find("time").First())
	}
	return meta, true
}

func parseDateSelection(sel *goquery.Selection) *time.Time {
	if sel.Length() == 0 {
		return nil
	}
	if attr, ok := sel.Attr("datetime"); ok {
		if parsed, ok := parseDate(attr); ok {
			return &parsed
		}
	}
	if parsed, ok := parseDate(sel.Text()); ok {
		return &parsed
	}
	return nil
}

// resolveLink makes href absolute against base; non-HTTP links yield "".
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
