package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/health"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSources []domain.SourceConfig

func (s staticSources) Sources() []domain.SourceConfig { return s }

type lastCycle struct{ stats *domain.CycleStats }

func (l lastCycle) LastCycle() *domain.CycleStats { return l.stats }

func testSources() staticSources {
	return staticSources{
		{Name: "kabutan", Kind: domain.KindScrape, Endpoint: "https://kabutan.jp/news/", RateLimit: 2 * time.Second, MaxArticles: 20},
		{Name: "babypips", Kind: domain.KindFeed, Endpoint: "https://www.babypips.com/feed", RateLimit: time.Second, MaxArticles: 50},
	}
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestSourcesEndpoints(t *testing.T) {
	tracker := health.NewTracker(health.Config{DegradedAfter: 1, DisableAfter: 1, Cooldown: time.Hour})
	tracker.RecordOutcome("kabutan", false, errors.New("503"))
	tracker.RecordOutcome("kabutan", false, errors.New("503"))

	s := NewServer(Deps{Health: tracker, Sources: testSources()})

	rec := do(t, s, http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Sources []sourceView `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sources, 2)
	assert.Equal(t, "babypips", list.Sources[0].Name)
	assert.Equal(t, domain.HealthHealthy, list.Sources[0].Health.State)
	assert.Equal(t, domain.HealthDisabled, list.Sources[1].Health.State)
	assert.Equal(t, "2s", list.Sources[1].RateLimit)

	rec = do(t, s, http.MethodGet, "/api/v1/sources/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/sources/kabutan/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.HealthHealthy, tracker.CurrentState("kabutan"))

	rec = do(t, s, http.MethodPost, "/api/v1/sources/missing/reset")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/sources/kabutan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"HEALTHY"`)
}

func TestLastCycleEndpoint(t *testing.T) {
	s := NewServer(Deps{Cycles: lastCycle{}})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/cycles/last").Code)

	start := time.Date(2025, 10, 6, 8, 0, 0, 0, time.UTC)
	stats := &domain.CycleStats{
		ID: "c-1", StartedAt: start, FinishedAt: start.Add(2 * time.Second),
		Sources: []domain.SourceTally{{Source: "babypips", Discovered: 3, Processed: 2, SkippedDuplicate: 1}},
	}
	s = NewServer(Deps{Cycles: lastCycle{stats: stats}})

	rec := do(t, s, http.MethodGet, "/api/v1/cycles/last")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c-1", body["id"])
	assert.Equal(t, 2.0, body["duration_seconds"])
	assert.InDelta(t, 2.0/3.0, body["success_rate"], 1e-9)
	assert.Contains(t, body["summary"], "2 processed")
}

func TestHealthz(t *testing.T) {
	s := NewServer(Deps{Checks: map[string]Check{
		"redis": func(context.Context) error { return nil },
	}})
	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	s = NewServer(Deps{Checks: map[string]Check{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "newscrawler_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer(Deps{Gatherer: reg})
	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "newscrawler_test_total 1"))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer(Deps{Address: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
