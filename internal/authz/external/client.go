package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

var tracer = otel.Tracer("avaguard/authority")

// CheckRequest is one (subject, relation, object) question.
type CheckRequest struct {
	Subject  string
	Relation string
	Object   string
}

// Relationship is one stored (subject, relation, object) tuple.
type Relationship struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// ListObjectsRequest asks for every object of Type on which Subject holds Relation.
type ListObjectsRequest struct {
	Subject  string
	Relation string
	Type     string
}

// Backend speaks one policy engine's protocol.
type Backend interface {
	// Name returns the engine name, used for logs and metrics.
	Name() string

	// Check asks the engine whether the request is allowed.
	Check(ctx context.Context, req CheckRequest) (bool, error)

	// Health reports whether the engine is reachable.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// RelationshipStore is implemented by backends that hold relationships
// themselves rather than evaluating policy over external data.
type RelationshipStore interface {
	// Write applies writes and deletes in one transaction.
	Write(ctx context.Context, writes, deletes []Relationship) error

	// ListObjects returns the ids of the matching objects.
	ListObjects(ctx context.Context, req ListObjectsRequest) ([]string, error)
}

// Client sends checks to a Backend with bounded latency.
type Client struct {
	backend    Backend
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     observability.Logger
	metrics    *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithHTTPClient sets the HTTP client used by backends built in New.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New builds the backend selected by cfg and wraps it in a Client.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	applied := &Client{}
	for _, opt := range opts {
		opt(applied)
	}
	httpClient := applied.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case TypeOpenFGA:
		backend, err = NewOpenFGABackend(cfg.OpenFGA, httpClient)
	case TypeOPA:
		backend, err = NewOPABackend(cfg.OPA, httpClient)
	default:
		err = fmt.Errorf("authority: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return NewClient(backend, cfg, opts...), nil
}

// NewClient wraps backend. Breaker and limiter are taken from cfg.
func NewClient(backend Backend, cfg *Config, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		timeout: cfg.EffectiveTimeout(),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		c.breaker = newBreaker("authority-"+backend.Name(), cb, c.logger, c.metrics)
	}
	if rl := cfg.RateLimit; rl != nil && rl.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(rl.RPS), rl.Burst)
	}

	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.backend.Name()
}

// Check asks the engine about req. A non-positive timeout uses the configured
// default. Every failure wraps ErrAuthorityTimeout or ErrAuthorityUnavailable.
func (c *Client) Check(ctx context.Context, req CheckRequest, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "authority.Check",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authority.backend", c.backend.Name()),
			attribute.String("authz.relation", req.Relation),
			attribute.String("authz.object", req.Object),
		),
	)
	defer span.End()

	start := time.Now()

	allowed, err := c.check(ctx, req)
	duration := time.Since(start)

	if err != nil {
		err = classify(ctx, err)
		result := resultUnavailable
		if errors.Is(err, ErrAuthorityTimeout) {
			result = resultTimeout
		}
		c.metrics.RecordCheck(c.backend.Name(), result, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		c.logger.Warn("authority check failed",
			observability.String("backend", c.backend.Name()),
			observability.String("relation", req.Relation),
			observability.String("object", req.Object),
			observability.Duration("duration", duration),
			observability.Error(err),
		)
		return false, err
	}

	result := resultDenied
	if allowed {
		result = resultAllowed
	}
	c.metrics.RecordCheck(c.backend.Name(), result, duration)
	span.SetAttributes(attribute.Bool("authz.allowed", allowed))
	span.SetStatus(codes.Ok, "")

	c.logger.Debug("authority check completed",
		observability.String("backend", c.backend.Name()),
		observability.Bool("allowed", allowed),
		observability.Duration("duration", duration),
	)

	return allowed, nil
}

func (c *Client) check(ctx context.Context, req CheckRequest) (bool, error) {
	v, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.backend.Check(ctx, req)
	})
	if err != nil {
		return false, err
	}
	allowed, _ := v.(bool)
	return allowed, nil
}

// execute runs fn behind the rate limiter and the circuit breaker.
func (c *Client) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails only on cancellation or a deadline it cannot meet.
			return nil, fmt.Errorf("%w: rate limit wait: %w", ErrAuthorityTimeout, err)
		}
		c.metrics.recordRateLimitWait(time.Since(waitStart))
	}

	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

// WriteRelationships applies writes and deletes at the engine within the
// default timeout. Engines that evaluate policy rather than store
// relationships return ErrUnsupported.
func (c *Client) WriteRelationships(ctx context.Context, writes, deletes []Relationship) error {
	store, ok := c.backend.(RelationshipStore)
	if !ok {
		return fmt.Errorf("%s: write relationships: %w", c.backend.Name(), ErrUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "authority.WriteRelationships",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authority.backend", c.backend.Name()),
			attribute.Int("authority.writes", len(writes)),
			attribute.Int("authority.deletes", len(deletes)),
		),
	)
	defer span.End()

	start := time.Now()
	_, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, store.Write(ctx, writes, deletes)
	})
	return c.finish(ctx, span, operationWrite, start, err)
}

// ListObjects asks the engine which objects match req within the default timeout.
func (c *Client) ListObjects(ctx context.Context, req ListObjectsRequest) ([]string, error) {
	store, ok := c.backend.(RelationshipStore)
	if !ok {
		return nil, fmt.Errorf("%s: list objects: %w", c.backend.Name(), ErrUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "authority.ListObjects",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authority.backend", c.backend.Name()),
			attribute.String("authz.relation", req.Relation),
			attribute.String("authz.object_type", req.Type),
		),
	)
	defer span.End()

	start := time.Now()
	v, err := c.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return store.ListObjects(ctx, req)
	})
	if err := c.finish(ctx, span, operationListObjects, start, err); err != nil {
		return nil, err
	}
	objects, _ := v.([]string)
	span.SetAttributes(attribute.Int("authority.objects", len(objects)))
	return objects, nil
}

// finish classifies err and records the operation outcome.
func (c *Client) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) error {
	duration := time.Since(start)
	if err == nil {
		c.metrics.RecordOperation(c.backend.Name(), operation, resultOK)
		span.SetStatus(codes.Ok, "")
		return nil
	}

	err = classify(ctx, err)
	result := resultUnavailable
	if errors.Is(err, ErrAuthorityTimeout) {
		result = resultTimeout
	}
	c.metrics.RecordOperation(c.backend.Name(), operation, result)
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	c.logger.Warn("authority operation failed",
		observability.String("backend", c.backend.Name()),
		observability.String("operation", operation),
		observability.Duration("duration", duration),
		observability.Error(err),
	)
	return err
}

// Health checks the engine within the default timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Health(ctx); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// Close closes the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

// classify maps err onto ErrAuthorityTimeout or ErrAuthorityUnavailable.
func classify(ctx context.Context, err error) error {
	if IsAuthorityError(err) {
		return err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker: %w", ErrAuthorityUnavailable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrAuthorityTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrAuthorityTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
}
