package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/infrastructure/fetch"
)

const storyParagraph = "The central bank left its policy rate unchanged on Tuesday, citing persistent services inflation and a resilient labour market. "

func articlePage() string {
	return `<html><head><title>Rates</title><script>var x = 1;</script></head><body>
<nav>Home | Markets | About</nav>
<div class="story">
  <h1>Central bank holds</h1>
  <p>` + strings.Repeat(storyParagraph, 3) + `</p>
  <p>Analysts    expect   a cut in December.</p>
  <script>track()</script>
</div>
<footer>Copyright</footer>
</body></html>`
}

func newExtractor(t *testing.T, handler http.HandlerFunc) (*HTTPExtractor, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPExtractor(fetch.New(fetch.Options{Client: srv.Client()}), nil), srv.URL
}

func TestExtractWithContentSelector(t *testing.T) {
	t.Parallel()

	ex, base := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage()))
	})

	src := domain.SourceConfig{Name: "fxstreet", Selectors: domain.Selectors{Content: "div.story"}}
	text, err := ex.Extract(context.Background(), src, base+"/news/1")
	require.NoError(t, err)

	assert.Contains(t, text, "Central bank holds")
	assert.Contains(t, text, "Analysts expect a cut in December.")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "Home | Markets")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractFallsBackWithoutSelector(t *testing.T) {
	t.Parallel()

	ex, base := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage()))
	})

	text, err := ex.Extract(context.Background(), domain.SourceConfig{Name: "fxstreet"}, base+"/news/2")
	require.NoError(t, err)
	assert.Contains(t, text, "policy rate unchanged")
	assert.NotContains(t, text, "var x = 1")
}

func TestExtractThinSelectorFallsBack(t *testing.T) {
	t.Parallel()

	ex, base := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage()))
	})

	src := domain.SourceConfig{Name: "fxstreet", Selectors: domain.Selectors{Content: "h1"}}
	text, err := ex.Extract(context.Background(), src, base+"/news/3")
	require.NoError(t, err)
	assert.Contains(t, text, "policy rate unchanged")
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()

	ex, base := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><script>only()</script></body></html>"))
	})

	text, err := ex.Extract(context.Background(), domain.SourceConfig{Name: "empty"}, base+"/blank")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(text))
}

func TestExtractHTTPFailure(t *testing.T) {
	t.Parallel()

	ex, base := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := ex.Extract(context.Background(), domain.SourceConfig{Name: "x"}, base+"/missing")
	require.Error(t, err)
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b\nc", normalizeText("  a   b \n\n\t\n c  "))
}
