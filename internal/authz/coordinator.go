package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaguard/internal/auth/jwt"
	"github.com/vyrodovalexey/avaguard/internal/authz/external"
	"github.com/vyrodovalexey/avaguard/internal/observability"
	"github.com/vyrodovalexey/avaguard/internal/session"
)

var tracer = otel.Tracer("avaguard/authz")

// Relations used by the convenience helpers.
const (
	RelationViewer = "viewer"
	RelationEditor = "editor"
	RelationOwner  = "owner"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*jwt.Identity, error)
}

// RevocationChecker looks up the session behind a token.
type RevocationChecker interface {
	CheckRevocation(ctx context.Context, token string) (*session.Record, error)
}

// Authority asks the remote policy engine.
type Authority interface {
	Check(ctx context.Context, req external.CheckRequest, timeout time.Duration) (bool, error)
}

// RelationshipStore changes and lists relationships held by the engine.
// An Authority that also implements it enables the relationship operations.
type RelationshipStore interface {
	WriteRelationships(ctx context.Context, writes, deletes []external.Relationship) error
	ListObjects(ctx context.Context, req external.ListObjectsRequest) ([]string, error)
}

// Coordinator runs token verification, the session check, and the cached
// engine lookup, in that order, for every request.
type Coordinator struct {
	verifier       TokenVerifier
	sessions       RevocationChecker
	authority      Authority
	relationships  RelationshipStore
	cache          *DecisionCache
	requestTimeout time.Duration
	maxTimeout     time.Duration
	logger         observability.Logger
	metrics        *Metrics
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithRequestTimeout sets the engine timeout used when Authorize gets none.
func WithRequestTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.requestTimeout = d
	}
}

// WithMaxTimeout sets the largest timeout a caller may ask for. A shared
// engine call runs for at least this long, so a caller joining it with a
// longer budget than the first caller is not failed by the first caller's
// deadline.
func WithMaxTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.maxTimeout = d
	}
}

// NewCoordinator wires the pipeline. The cache is owned by the caller.
func NewCoordinator(
	verifier TokenVerifier,
	sessions RevocationChecker,
	authority Authority,
	cache *DecisionCache,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		verifier:       verifier,
		sessions:       sessions,
		authority:      authority,
		cache:          cache,
		requestTimeout: DefaultRequestTimeout,
		logger:         observability.NopLogger(),
	}
	if store, ok := authority.(RelationshipStore); ok {
		c.relationships = store
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize decides whether the bearer of token holds relation on object.
//
// Terminal rejections are returned as *RejectionError. A session store outage
// is returned as an error wrapping session.ErrStoreUnavailable. Engine
// failures are not errors: they resolve to Deny with SourceFailClosed.
// timeout bounds how long this caller waits on the engine; zero uses the
// configured default.
func (c *Coordinator) Authorize(
	ctx context.Context,
	token, relation, object string,
	timeout time.Duration,
) (*Result, error) {
	start := time.Now()

	if relation == "" || object == "" {
		return nil, ErrInvalidRequest
	}
	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	if c.maxTimeout > 0 && timeout > c.maxTimeout {
		timeout = c.maxTimeout
	}

	ctx, span := tracer.Start(ctx, "authz.Authorize",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("authz.relation", relation),
			attribute.String("authz.object", object),
		),
	)
	defer span.End()

	identity, err := c.authenticate(ctx, span, start, token)
	if err != nil {
		return nil, err
	}

	key := Key{Subject: identity.Subject, Relation: relation, Object: object}

	// Every caller waits no longer than its own timeout. The shared engine
	// call gets the largest budget any caller may have.
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	budget := c.sharedBudget(timeout)
	allowed, hit, err := c.cache.Resolve(waitCtx, key, func(ctx context.Context) (bool, error) {
		return c.authority.Check(ctx, external.CheckRequest{
			Subject:  key.Subject,
			Relation: key.Relation,
			Object:   key.Object,
		}, budget)
	})

	result := &Result{Outcome: outcomeOf(allowed), Source: SourceCacheMiss}
	switch {
	case err != nil:
		result.Outcome = Deny
		result.Source = SourceFailClosed
		result.Reason = failClosedReason(err)
		span.RecordError(err)
		c.logger.Warn("authorization undecidable, failing closed",
			observability.String("key", key.String()),
			observability.String("reason", result.Reason),
			observability.Error(err),
		)
	case hit:
		result.Source = SourceCacheHit
	}
	result.Latency = time.Since(start)

	span.SetAttributes(
		attribute.String("authz.outcome", string(result.Outcome)),
		attribute.String("authz.source", string(result.Source)),
	)
	c.metrics.recordDecision(result)

	c.logger.Debug("authorization resolved",
		observability.String("key", key.String()),
		observability.String("outcome", string(result.Outcome)),
		observability.String("source", string(result.Source)),
		observability.Duration("latency", result.Latency),
	)

	return result, nil
}

// authenticate verifies token and the session behind it.
func (c *Coordinator) authenticate(ctx context.Context, span trace.Span, start time.Time, token string) (*jwt.Identity, error) {
	identity, err := c.verifier.Verify(ctx, token)
	if err != nil {
		return nil, c.rejected(span, start, reject(ReasonInvalidToken, err))
	}
	span.SetAttributes(attribute.String("authz.subject", identity.Subject))

	record, err := c.sessions.CheckRevocation(ctx, token)
	switch {
	case errors.Is(err, session.ErrSessionRevoked):
		return nil, c.rejected(span, start, reject(ReasonSessionRevoked, err))
	case errors.Is(err, session.ErrSessionNotFound):
		return nil, c.rejected(span, start, reject(ReasonSessionNotFound, err))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "session check failed")
		c.logger.Error("session check failed",
			observability.String("subject", identity.Subject),
			observability.Error(err),
		)
		return nil, fmt.Errorf("session check: %w", err)
	}
	if record.Subject != "" && record.Subject != identity.Subject {
		return nil, c.rejected(span, start,
			reject(ReasonSessionNotFound, fmt.Errorf("session subject does not match token: %w", session.ErrSessionNotFound)))
	}
	return identity, nil
}

// WriteRelationships applies writes and deletes at the engine, then drops
// every cached decision about the objects they touch. The cache is also
// cleared for those objects when the write fails, since a timed out write
// may still have been applied.
func (c *Coordinator) WriteRelationships(ctx context.Context, writes, deletes []external.Relationship) error {
	if c.relationships == nil {
		return fmt.Errorf("write relationships: %w", external.ErrUnsupported)
	}
	if len(writes) == 0 && len(deletes) == 0 {
		return ErrInvalidRelationship
	}
	for _, group := range [][]external.Relationship{writes, deletes} {
		for _, r := range group {
			if r.Subject == "" || r.Relation == "" || r.Object == "" {
				return ErrInvalidRelationship
			}
		}
	}

	ctx, span := tracer.Start(ctx, "authz.WriteRelationships",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("authz.writes", len(writes)),
			attribute.Int("authz.deletes", len(deletes)),
		),
	)
	defer span.End()

	err := c.relationships.WriteRelationships(ctx, writes, deletes)

	objects := make(map[string]struct{}, len(writes)+len(deletes))
	removed := 0
	for _, group := range [][]external.Relationship{writes, deletes} {
		for _, r := range group {
			if _, seen := objects[r.Object]; seen {
				continue
			}
			objects[r.Object] = struct{}{}
			removed += c.cache.InvalidateObject(r.Object)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		c.logger.Warn("relationship write failed",
			observability.Int("writes", len(writes)),
			observability.Int("deletes", len(deletes)),
			observability.Error(err),
		)
		return fmt.Errorf("write relationships: %w", err)
	}

	c.logger.Info("relationships written",
		observability.Int("writes", len(writes)),
		observability.Int("deletes", len(deletes)),
		observability.Int("invalidated", removed),
	)
	return nil
}

// ListObjects returns the objects of objectType on which the bearer of token
// holds relation. Token and session are checked as in Authorize.
func (c *Coordinator) ListObjects(ctx context.Context, token, relation, objectType string) ([]string, error) {
	start := time.Now()

	if c.relationships == nil {
		return nil, fmt.Errorf("list objects: %w", external.ErrUnsupported)
	}
	if relation == "" || objectType == "" {
		return nil, ErrInvalidListRequest
	}

	ctx, span := tracer.Start(ctx, "authz.ListObjects",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("authz.relation", relation),
			attribute.String("authz.object_type", objectType),
		),
	)
	defer span.End()

	identity, err := c.authenticate(ctx, span, start, token)
	if err != nil {
		return nil, err
	}

	objects, err := c.relationships.ListObjects(ctx, external.ListObjectsRequest{
		Subject:  identity.Subject,
		Relation: relation,
		Type:     objectType,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list objects failed")
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return objects, nil
}

func (c *Coordinator) sharedBudget(timeout time.Duration) time.Duration {
	return max(timeout, c.requestTimeout, c.maxTimeout)
}

func (c *Coordinator) rejected(span trace.Span, start time.Time, err *RejectionError) error {
	span.SetStatus(codes.Error, err.Reason)
	span.SetAttributes(attribute.String("authz.rejection", err.Reason))
	c.metrics.recordRejection(err.Reason, time.Since(start))
	c.logger.Info("authorization rejected",
		observability.String("reason", err.Reason),
		observability.Error(err.Err),
	)
	return err
}

// failClosedReason separates "engine too slow" from "engine unreachable".
// A waiter whose own context ended counts as a timeout.
func failClosedReason(err error) string {
	if errors.Is(err, external.ErrAuthorityTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return ReasonAuthorityTimeout
	}
	return ReasonAuthorityUnavailable
}

// CanRead authorizes the viewer relation.
func (c *Coordinator) CanRead(ctx context.Context, token, object string) (*Result, error) {
	return c.Authorize(ctx, token, RelationViewer, object, 0)
}

// CanWrite authorizes the editor relation.
func (c *Coordinator) CanWrite(ctx context.Context, token, object string) (*Result, error) {
	return c.Authorize(ctx, token, RelationEditor, object, 0)
}

// IsOwner authorizes the owner relation.
func (c *Coordinator) IsOwner(ctx context.Context, token, object string) (*Result, error) {
	return c.Authorize(ctx, token, RelationOwner, object, 0)
}
