package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/domain"
)

type fakeBackend struct {
	mu     sync.Mutex
	points map[string]bool
	chats  int
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>First story</title><link>%[1]s/article/1</link></item>
<item><title>Second story</title><link>%[1]s/article/2</link></item>
</channel></rss>`, base)
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		paragraph := strings.Repeat("Markets moved sharply after the central bank decision on "+r.URL.Path+". ", 6)
		fmt.Fprintf(w, `<html><body><article><h1>Story</h1><p>%s</p><p>%s</p></article></body></html>`, paragraph, paragraph)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.chats++
		f.mu.Unlock()
		answer, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{
				"role": "assistant", "content": `{"title":"Story","cleaned_content":"Markets moved sharply."}`,
			}}},
		})
		_, _ = w.Write(answer)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	})
	mux.HandleFunc("/collections/news", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	})
	mux.HandleFunc("/collections/news/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []struct {
				ID string `json:"id"`
			} `json:"points"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		for _, p := range body.Points {
			f.points[p.ID] = true
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	return mux
}

func writeConfig(t *testing.T, srvURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
logging:
  level: debug
scheduler:
  interval: 1h
  parallelism: 2
state:
  file: %[2]s
cleaner:
  endpoint: %[1]s/v1/chat/completions
  api_key: test
  max_attempts: 1
embedder:
  endpoint: %[1]s/v1/embeddings
qdrant:
  url: %[1]s
  collection: news
  vector_size: 3
http:
  address: ""
sources:
  - name: testfeed
    kind: rss
    endpoint: %[1]s/feed
    rate_limit_seconds: 0.01
    category: forex
`, srvURL, filepath.Join(dir, "state.json"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestApplicationRunOnceEndToEnd(t *testing.T) {
	backend := &fakeBackend{points: map[string]bool{}}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	path := writeConfig(t, srv.URL)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx := context.Background()
	application, err := New(ctx, cfg, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, application.Close(ctx)) }()

	require.Len(t, application.Sources(), 1)

	stats, err := application.RunOnce(ctx)
	require.NoError(t, err)
	tally, ok := stats.Tally("testfeed")
	require.True(t, ok)
	assert.Equal(t, 2, tally.Discovered)
	assert.Equal(t, 2, tally.Processed, "reasons: %v", tally.Reasons)

	backend.mu.Lock()
	assert.Len(t, backend.points, 2)
	backend.mu.Unlock()

	stats, err = application.RunOnce(ctx)
	require.NoError(t, err)
	tally, _ = stats.Tally("testfeed")
	assert.Equal(t, 2, tally.SkippedDuplicate)
	assert.Equal(t, 0, tally.Processed)

	backend.mu.Lock()
	assert.Equal(t, 2, backend.chats)
	backend.mu.Unlock()

	assert.Equal(t, domain.HealthHealthy, application.Health().CurrentState("testfeed"))
	assert.FileExists(t, cfg.State.File)

	// A restarted crawler restores the fingerprints and keeps skipping.
	restarted, err := New(ctx, cfg, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, restarted.Close(ctx)) }()

	stats, err = restarted.RunOnce(ctx)
	require.NoError(t, err)
	tally, _ = stats.Tally("testfeed")
	assert.Equal(t, 2, tally.SkippedDuplicate)
}

func TestApplicationNeedsAStore(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "http://127.0.0.1:1"))
	require.NoError(t, err)
	cfg.Qdrant.URL = ""

	_, err = New(context.Background(), cfg, "", nil)
	assert.ErrorContains(t, err, "no article store configured")
}
