package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

var tracer = otel.Tracer("avaguard/session")

// Check results, used as metric labels.
const (
	resultValid    = "valid"
	resultNotFound = "not_found"
	resultRevoked  = "revoked"
	resultExpired  = "expired"
	resultError    = "error"
)

// Registry checks bearer tokens against persisted sessions.
type Registry struct {
	store         Store
	fingerprinter *Fingerprinter
	lookupTimeout time.Duration
	clock         func() time.Time
	logger        observability.Logger
	metrics       *Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the time source used for revocation and expiry.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRegistryMetrics sets the metrics.
func WithRegistryMetrics(metrics *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

// WithLookupTimeout bounds each store lookup.
func WithLookupTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.lookupTimeout = d
	}
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store, fingerprinter *Fingerprinter, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:         store,
		fingerprinter: fingerprinter,
		clock:         time.Now,
		logger:        observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckRevocation returns the live session for token. It fails with
// ErrSessionNotFound when no record matches or the record has expired, with
// ErrSessionRevoked when the revocation timestamp is at or before now, and
// with ErrStoreUnavailable when the store cannot answer.
func (r *Registry) CheckRevocation(ctx context.Context, token string) (*Record, error) {
	start := time.Now()
	fingerprint := r.fingerprinter.Fingerprint(token)

	ctx, span := tracer.Start(ctx, "session.CheckRevocation",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("session.fingerprint", short(fingerprint))),
	)
	defer span.End()

	rec, result, err := r.check(ctx, fingerprint)
	r.metrics.recordCheck(result, time.Since(start))
	span.SetAttributes(attribute.String("session.result", result))

	if err != nil {
		if result == resultError {
			span.SetStatus(codes.Error, err.Error())
			r.logger.Warn("session lookup failed",
				observability.String("fingerprint", short(fingerprint)),
				observability.Error(err),
			)
		} else {
			r.logger.Debug("session rejected",
				observability.String("fingerprint", short(fingerprint)),
				observability.String("result", result),
			)
		}
		return nil, err
	}
	return rec, nil
}

func (r *Registry) check(ctx context.Context, fingerprint string) (*Record, string, error) {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	rec, err := r.store.Lookup(ctx, fingerprint)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return nil, resultNotFound, ErrSessionNotFound
	case err != nil:
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, resultError, err
	}

	now := r.clock()
	if rec.RevokedBy(now) {
		return nil, resultRevoked, ErrSessionRevoked
	}
	if rec.ExpiredBy(now) {
		return nil, resultExpired, fmt.Errorf("%w: session expired", ErrSessionNotFound)
	}
	return rec, resultValid, nil
}

// Register records a new session for token. It is called by the login flow.
func (r *Registry) Register(ctx context.Context, token, subject string, expiresAt time.Time) error {
	rec := &Record{
		Fingerprint: r.fingerprinter.Fingerprint(token),
		Subject:     subject,
		CreatedAt:   r.clock().UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}
	err := r.store.Create(ctx, rec)
	r.metrics.recordWrite("create", err)
	return err
}

// Revoke marks the session for token as revoked now.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	fingerprint := r.fingerprinter.Fingerprint(token)
	err := r.store.Revoke(ctx, fingerprint, r.clock().UTC())
	r.metrics.recordWrite("revoke", err)
	if errors.Is(err, ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err == nil {
		r.logger.Info("session revoked", observability.String("fingerprint", short(fingerprint)))
	}
	return err
}

// Cleanup deletes sessions that expired before now.
func (r *Registry) Cleanup(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, r.clock())
	r.metrics.recordWrite("cleanup", err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("expired sessions removed", observability.Int64("count", n))
	}
	return n, nil
}

// Ping checks the store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Close releases the store.
func (r *Registry) Close() error {
	return r.store.Close()
}

// RunCleanup calls Cleanup every interval until ctx ends.
func (r *Registry) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Cleanup(ctx); err != nil {
				r.logger.Warn("session cleanup failed", observability.Error(err))
			}
		}
	}
}
