package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avaguard/internal/auth/jwt"
	"github.com/vyrodovalexey/avaguard/internal/authz"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/retry"
	"github.com/vyrodovalexey/avaguard/internal/server"
	"github.com/vyrodovalexey/avaguard/internal/session"
)

const metricsNamespace = "avaguard"

// application holds all application components.
type application struct {
	config      *config.Config
	logger      observability.Logger
	tracer      *observability.Tracer
	sessions    *session.Registry
	authority   *external.Client
	cache       *authz.DecisionCache
	coordinator *authz.Coordinator
	server      *server.Server
}

// componentMetrics groups the per-package collectors.
type componentMetrics struct {
	jwt       *jwt.Metrics
	session   *session.Metrics
	authority *external.Metrics
	authz     *authz.Metrics
	server    *server.Metrics
}

func newComponentMetrics() componentMetrics {
	return componentMetrics{
		jwt:       jwt.NewMetrics(metricsNamespace),
		session:   session.NewMetrics(metricsNamespace),
		authority: external.NewMetrics(metricsNamespace),
		authz:     authz.NewMetrics(metricsNamespace),
		server:    server.NewMetrics(metricsNamespace),
	}
}

// newApplication builds every component and waits for the session store and
// the policy engine to answer. Partially built components are released on error.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	return buildApplication(ctx, cfg, logger, newComponentMetrics(), retry.DefaultConfig())
}

func buildApplication(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	metrics componentMetrics,
	startup retry.Config,
) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	if app.tracer, err = observability.NewTracer(ctx, cfg.Tracing); err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	verifier, err := jwt.NewVerifier(ctx, cfg.JWT,
		jwt.WithLogger(logger.Named("jwt")),
		jwt.WithMetrics(metrics.jwt),
	)
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}

	if app.sessions, err = openSessions(&cfg.Session, logger, metrics.session); err != nil {
		return nil, err
	}

	if app.authority, err = external.New(&cfg.Authority,
		external.WithLogger(logger.Named("authority")),
		external.WithMetrics(metrics.authority),
	); err != nil {
		return nil, fmt.Errorf("authority client: %w", err)
	}

	if err = waitForDependency(ctx, "session store", app.sessions.Ping, startup, logger); err != nil {
		return nil, err
	}
	if err = waitForDependency(ctx, "authority", app.authority.Health, startup, logger); err != nil {
		return nil, err
	}

	app.cache = authz.NewDecisionCache(cfg.Cache,
		authz.WithCacheLogger(logger.Named("cache")),
		authz.WithCacheMetrics(metrics.authz),
	)
	app.coordinator = authz.NewCoordinator(verifier, app.sessions, app.authority, app.cache,
		authz.WithLogger(logger.Named("authz")),
		authz.WithMetrics(metrics.authz),
		authz.WithRequestTimeout(cfg.Cache.RequestTimeout),
		authz.WithMaxTimeout(cfg.Server.MaxRequestTimeout.Duration()),
	)

	app.server = server.New(cfg.Server, app.coordinator, app.cache,
		server.WithLogger(logger.Named("http")),
		server.WithMetrics(metrics.server),
		server.WithRelationships(app.coordinator),
		server.WithHealthChecks(
			server.HealthCheck{Name: "sessions", Check: app.sessions.Ping},
			server.HealthCheck{Name: "authority", Check: app.authority.Health},
		),
	)

	return app, nil
}

func openSessions(cfg *session.Config, logger observability.Logger, metrics *session.Metrics) (*session.Registry, error) {
	fingerprinter, err := session.NewFingerprinter(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("session fingerprint: %w", err)
	}
	store, err := session.OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return session.NewRegistry(store, fingerprinter,
		session.WithRegistryLogger(logger.Named("session")),
		session.WithRegistryMetrics(metrics),
		session.WithLookupTimeout(cfg.LookupTimeout),
	), nil
}

// waitForDependency checks a dependency with backoff until it answers.
func waitForDependency(
	ctx context.Context,
	name string,
	check func(context.Context) error,
	cfg retry.Config,
	logger observability.Logger,
) error {
	err := retry.Do(ctx, cfg, check, func(attempt int, err error, backoff time.Duration) {
		logger.Warn("dependency not ready, retrying",
			observability.String("dependency", name),
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err),
		)
	})
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", name, err)
	}
	logger.Info("dependency ready", observability.String("dependency", name))
	return nil
}

// run serves until ctx ends, then shuts down gracefully.
func (a *application) run(ctx context.Context) error {
	if interval := a.config.Session.CleanupInterval; interval > 0 {
		go a.sessions.RunCleanup(ctx, interval)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop HTTP server gracefully", observability.Error(err))
	}
	a.close(shutdownCtx)

	a.logger.Info("avaguard stopped")
	return serveErr
}

// close releases components in reverse construction order.
func (a *application) close(ctx context.Context) {
	if a.cache != nil {
		a.cache.Close()
	}
	var errs []error
	if a.authority != nil {
		if err := a.authority.Close(); err != nil {
			errs = append(errs, fmt.Errorf("authority: %w", err))
		}
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("failed to release resources", observability.Error(err))
	}
}
