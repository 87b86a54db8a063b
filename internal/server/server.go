package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avaguard/internal/authz"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

const maxRequestBodySize = 64 << 10

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// Authorizer resolves an authorization request.
type Authorizer interface {
	Authorize(ctx context.Context, token, relation, object string, timeout time.Duration) (*authz.Result, error)
}

// CacheAdmin administers the decision cache.
type CacheAdmin interface {
	Invalidate(key authz.Key) bool
	InvalidateMatching(sel authz.Selector) int
	Clear() int
	Stats() authz.Stats
}

// Relationships writes and lists relationships held by the policy engine.
type Relationships interface {
	WriteRelationships(ctx context.Context, writes, deletes []external.Relationship) error
	ListObjects(ctx context.Context, token, relation, objectType string) ([]string, error)
}

// HealthCheck is one readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP front of the authorization pipeline.
type Server struct {
	cfg        config.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
	authorizer Authorizer
	cache      CacheAdmin
	relations  Relationships
	checks     []HealthCheck
	gatherer   prometheus.Gatherer
	logger     observability.Logger
	metrics    *Metrics

	mu      sync.Mutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the HTTP metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithHealthChecks sets the dependencies checked by /readyz.
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, checks...)
	}
}

// WithRelationships enables the relationship endpoints.
func WithRelationships(relations Relationships) Option {
	return func(s *Server) {
		s.relations = relations
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, authorizer Authorizer, cache CacheAdmin, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		authorizer: authorizer,
		cache:      cache,
		gatherer:   prometheus.DefaultGatherer,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ginModeOnce.Do(func() {
		mode := cfg.Mode
		if mode == "" {
			mode = gin.ReleaseMode
		}
		gin.SetMode(mode)
	})

	s.engine = gin.New()
	s.engine.Use(
		recovery(s.logger),
		requestID(),
		tracing(),
		logging(s.logger, s.metrics),
		maxBodySize(maxRequestBodySize),
	)
	s.routes()

	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/readyz", s.handleReadyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.POST("/authorize", s.handleAuthorize)

	admin := v1.Group("/cache", adminAuth(s.cfg.AdminToken))
	admin.POST("/invalidate", s.handleInvalidate)
	admin.DELETE("", s.handleClear)
	admin.GET("/stats", s.handleStats)

	if s.relations != nil {
		v1.POST("/objects", s.handleListObjects)
		v1.POST("/relationships", adminAuth(s.cfg.AdminToken), s.handleWriteRelationships)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", s.cfg.Address),
		observability.Duration("readTimeout", s.cfg.ReadTimeout.Duration()),
		observability.Duration("writeTimeout", s.cfg.WriteTimeout.Duration()),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}
