// Package extract pulls the readable body text out of article pages.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/infrastructure/fetch"
	"NewsCrawler/internal/ports"
)

const defaultMinSelectorText = 80

// blockBreaks keeps paragraph boundaries when HTML is flattened to text.
var blockBreaks = strings.NewReplacer("</p>", "</p>\n", "<br>", "<br>\n", "<br/>", "<br/>\n", "</h1>", "</h1>\n", "</h2>", "</h2>\n", "</h3>", "</h3>\n", "</li>", "</li>\n", "</div>", "</div>\n")

const noiseSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe"

// HTTPExtractor downloads article pages and returns their main text. A source's
// content selector wins when it yields enough text; readability is the fallback.
type HTTPExtractor struct {
	fetcher         *fetch.Fetcher
	minSelectorText int
	logger          *zap.Logger
}

var _ ports.Extractor = (*HTTPExtractor)(nil)

// NewHTTPExtractor wires the shared fetcher.
func NewHTTPExtractor(fetcher *fetch.Fetcher, logger *zap.Logger) *HTTPExtractor {
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPExtractor{
		fetcher:         fetcher,
		minSelectorText: defaultMinSelectorText,
		logger:          logger,
	}
}

// Extract returns plain text; an empty string means the page had no readable body.
func (e *HTTPExtractor) Extract(ctx context.Context, src domain.SourceConfig, articleURL string) (string, error) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return "", fmt.Errorf("invalid article url %q: %w", articleURL, err)
	}

	doc, raw, err := e.fetcher.Document(ctx, articleURL, src.Headers)
	if err != nil {
		return "", err
	}

	if src.Selectors.Content != "" {
		text := selectionText(doc.Find(src.Selectors.Content))
		if len(text) >= e.minSelectorText {
			return text, nil
		}
		e.logger.Debug("content selector too thin, using readability",
			zap.String("source", src.Name),
			zap.String("url", articleURL),
			zap.Int("chars", len(text)))
	}

	if text, err := readableText(raw, pageURL); err != nil {
		e.logger.Debug("readability failed", zap.String("url", articleURL), zap.Error(err))
	} else if text != "" {
		return text, nil
	}

	return bodyText(doc), nil
}

func readableText(raw []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(article.Content) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.Replace(article.Content)))
	if err != nil {
		return "", fmt.Errorf("parse readable html: %w", err)
	}
	return normalizeText(doc.Text()), nil
}

func selectionText(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find(noiseSelectors).Remove()

	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find(noiseSelectors).Remove()
	return normalizeText(body.Text())
}

// normalizeText collapses runs of blank space inside lines and drops empty lines.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
