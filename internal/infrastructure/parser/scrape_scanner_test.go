package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/infrastructure/fetch"
)

const kabutanListing = `
<html><body>
<table class="s_news_list">
  <tr>
    <td class="news_time"><time datetime="2025-10-06T09:30:00+09:00">10/06 09:30</time></td>
    <td><a href="/news/marketnews/?b=n202510060001">日経平均 反発</a></td>
  </tr>
  <tr>
    <td class="news_time"><time>2025年10月06日 10:15</time></td>
    <td><a href="/news/marketnews/?b=n202510060002">  円安   進行 </a></td>
  </tr>
  <tr>
    <td class="news_time"></td>
    <td><a href="javascript:void(0)">broken</a></td>
  </tr>
  <tr>
    <td><a href="/news/marketnews/?b=n202510060001#top">duplicate</a></td>
  </tr>
</table>
</body></html>`

func TestScrapeScannerDiscover(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(kabutanListing))
	}))
	defer srv.Close()

	scanner := NewScrapeScanner(fetch.New(fetch.Options{Client: srv.Client()}))
	if scanner.Kind() != domain.KindScrape {
		t.Fatalf("unexpected kind %s", scanner.Kind())
	}

	src := domain.SourceConfig{
		Name:     "kabutan",
		Kind:     domain.KindScrape,
		Endpoint: srv.URL + "/news/marketnews/",
		Selectors: domain.Selectors{
			Article: "table.s_news_list tr",
			Link:    "a[href]",
			Date:    "time",
		},
	}

	items, err := scanner.Discover(context.Background(), src)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}

	if items[0].URL != srv.URL+"/news/marketnews/?b=n202510060001" {
		t.Fatalf("unexpected url %s", items[0].URL)
	}
	if items[0].Title != "日経平均 反発" {
		t.Fatalf("unexpected title %q", items[0].Title)
	}
	want := time.Date(2025, 10, 6, 0, 30, 0, 0, time.UTC)
	if items[0].PublishedAt == nil || !items[0].PublishedAt.Equal(want) {
		t.Fatalf("unexpected date %v", items[0].PublishedAt)
	}

	if items[1].Title != "円安 進行" {
		t.Fatalf("title not collapsed: %q", items[1].Title)
	}
	want = time.Date(2025, 10, 6, 10, 15, 0, 0, time.UTC)
	if items[1].PublishedAt == nil || !items[1].PublishedAt.Equal(want) {
		t.Fatalf("unexpected date %v", items[1].PublishedAt)
	}
}

func TestParseEntryTitleSelectorAndDefaults(t *testing.T) {
	t.Parallel()

	html := `
	<div>
	  <article>
	    <h2 class="headline">Fed holds rates</h2>
	    <a href="https://example.com/a/1">Read more</a>
	    <span class="date">Oct 6, 2025</span>
	  </article>
	  <article>
	    <a href="/a/2"><h3>Second story</h3></a>
	  </article>
	  <article><p>no link here</p></article>
	</div>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	base, _ := url.Parse("https://example.com/news/")

	src := domain.SourceConfig{
		Name:      "example",
		Selectors: domain.Selectors{Title: ".headline", Date: ".date"},
	}
	items := extractEntries(doc, src, base)
	if len(items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(items))
	}
	if items[0].Title != "Fed holds rates" {
		t.Fatalf("title selector ignored: %q", items[0].Title)
	}
	if items[0].PublishedAt == nil || !items[0].PublishedAt.Equal(time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", items[0].PublishedAt)
	}
	if items[1].URL != "https://example.com/a/2" || items[1].Title != "Second story" {
		t.Fatalf("unexpected second entry %+v", items[1])
	}
	if items[1].PublishedAt != nil {
		t.Fatalf("expected no date, got %v", items[1].PublishedAt)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2025-10-06":                      time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC),
		"Posted 6 Oct 2025 by staff":      time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC),
		"2025年1月9日":                      time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC),
		"Mon, 06 Oct 2025 08:00:00 +0000": time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, ok := parseDate(input)
		if !ok {
			t.Fatalf("parseDate(%q) failed", input)
		}
		if !got.Equal(want) {
			t.Fatalf("parseDate(%q) = %v, want %v", input, got, want)
		}
	}

	if _, ok := parseDate("yesterday"); ok {
		t.Fatal("expected failure for free text")
	}
}
