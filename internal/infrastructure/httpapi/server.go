// Package httpapi exposes crawler status over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
)

// HealthView is the subset of the health tracker the API reads and resets.
type HealthView interface {
	Health(source string) domain.SourceHealth
	Reset(source string) domain.SourceHealth
}

// CycleView exposes the last finished cycle.
type CycleView interface {
	LastCycle() *domain.CycleStats
}

// SourceView lists the sources currently scheduled.
type SourceView interface {
	Sources() []domain.SourceConfig
}

// Check tests one dependency for /healthz.
type Check func(ctx context.Context) error

// Deps wires the server.
type Deps struct {
	Address  string
	Health   HealthView
	Cycles   CycleView
	Sources  SourceView
	Checks   map[string]Check
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server serves the status API.
type Server struct {
	deps   Deps
	router *gin.Engine
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	s := &Server{
		deps:   deps,
		router: router,
		logger: deps.Logger,
		server: &http.Server{
			Addr:              deps.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	s.routes()
	return s
}

// Router returns the underlying Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.healthz)
	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	v1.GET("/sources", s.listSources)
	v1.GET("/sources/:name", s.getSource)
	v1.POST("/sources/:name/reset", s.resetSource)
	v1.GET("/cycles/last", s.lastCycle)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

type sourceView struct {
	Name        string              `json:"name"`
	Kind        domain.SourceKind   `json:"kind"`
	Endpoint    string              `json:"endpoint"`
	Category    string              `json:"category,omitempty"`
	RateLimit   string              `json:"rate_limit"`
	MaxArticles int                 `json:"max_articles"`
	Health      domain.SourceHealth `json:"health"`
}

type cycleView struct {
	*domain.CycleStats
	DurationSeconds float64 `json:"duration_seconds"`
	SuccessRate     float64 `json:"success_rate"`
	Summary         string  `json:"summary"`
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Checks))
	healthy := true
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{"status": "ok", "checks": checks}
	if last := s.lastStats(); last != nil {
		body["last_cycle"] = last.ID
		body["last_cycle_finished_at"] = last.FinishedAt
	}
	if !healthy {
		body["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listSources(c *gin.Context) {
	sources := s.sources()
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, s.view(src))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	c.JSON(http.StatusOK, gin.H{"sources": views})
}

func (s *Server) getSource(c *gin.Context) {
	src, ok := s.lookup(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
		return
	}
	c.JSON(http.StatusOK, s.view(src))
}

func (s *Server) resetSource(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.lookup(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
		return
	}
	if s.deps.Health == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "health tracking unavailable"})
		return
	}
	h := s.deps.Health.Reset(name)
	s.logger.Info("source health reset via api", zap.String("source", name))
	c.JSON(http.StatusOK, h)
}

func (s *Server) lastCycle(c *gin.Context) {
	last := s.lastStats()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has finished yet"})
		return
	}
	c.JSON(http.StatusOK, cycleView{
		CycleStats:      last,
		DurationSeconds: last.Duration().Seconds(),
		SuccessRate:     last.SuccessRate(),
		Summary:         last.Summary(),
	})
}

func (s *Server) sources() []domain.SourceConfig {
	if s.deps.Sources == nil {
		return nil
	}
	return s.deps.Sources.Sources()
}

func (s *Server) lookup(name string) (domain.SourceConfig, bool) {
	for _, src := range s.sources() {
		if src.Name == name {
			return src, true
		}
	}
	return domain.SourceConfig{}, false
}

func (s *Server) view(src domain.SourceConfig) sourceView {
	v := sourceView{
		Name:        src.Name,
		Kind:        src.Kind,
		Endpoint:    src.Endpoint,
		Category:    src.Category,
		RateLimit:   src.RateLimit.String(),
		MaxArticles: src.MaxArticles,
		Health:      domain.SourceHealth{Source: src.Name, State: domain.HealthHealthy},
	}
	if s.deps.Health != nil {
		v.Health = s.deps.Health.Health(src.Name)
	}
	return v
}

func (s *Server) lastStats() *domain.CycleStats {
	if s.deps.Cycles == nil {
		return nil
	}
	return s.deps.Cycles.LastCycle()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
