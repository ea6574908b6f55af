package parser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/infrastructure/fetch"
	"NewsCrawler/internal/scanner"
)

// FeedScanner discovers articles from RSS and Atom feeds.
type FeedScanner struct {
	fetcher *fetch.Fetcher
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires the shared fetcher.
func NewFeedScanner(fetcher *fetch.Fetcher) *FeedScanner {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{})
	}
	return &FeedScanner{fetcher: fetcher}
}

// Kind identifies the strategy inside the registry.
func (f *FeedScanner) Kind() domain.SourceKind {
	return domain.KindFeed
}

// Discover downloads the feed and lists its items in feed order.
func (f *FeedScanner) Discover(ctx context.Context, src domain.SourceConfig) ([]domain.ArticleMetadata, error) {
	body, err := f.fetcher.Get(ctx, src.Endpoint, src.Headers)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	base, _ := url.Parse(src.Endpoint)
	results := make([]domain.ArticleMetadata, 0, len(feed.Items))
	seen := map[string]struct{}{}

	for _, item := range feed.Items {
		meta, ok := feedItem(item, base, src.Name)
		if !ok {
			continue
		}
		key := domain.CanonicalURL(meta.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, meta)
	}
	return results, nil
}

func feedItem(item *gofeed.Item, base *url.URL, source string) (domain.ArticleMetadata, bool) {
	if item == nil {
		return domain.ArticleMetadata{}, false
	}

	link := resolveLink(base, itemLink(item))
	if link == "" {
		return domain.ArticleMetadata{}, false
	}

	meta := domain.ArticleMetadata{
		Source: source,
		URL:    link,
		Title:  collapseSpace(item.Title),
	}
	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		meta.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		meta.PublishedAt = &updated
	}
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			meta.Tags = append(meta.Tags, c)
		}
	}
	return meta, true
}

// itemLink prefers the item link and falls back to a URL-shaped GUID.
func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	if len(item.Links) > 0 {
		if link := strings.TrimSpace(item.Links[0]); link != "" {
			return link
		}
	}
	guid := strings.TrimSpace(item.GUID)
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}
