package jwt

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaguard/internal/observability"
)

var tracer = otel.Tracer("avaguard/jwt")

// Identity is what a verified token asserts about its bearer.
type Identity struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Email     string
	Username  string
	Roles     []string
}

// Verifier validates bearer tokens against trusted signing material.
// It is safe for concurrent use and has no side effects beyond metrics.
type Verifier struct {
	parseOpts  []jwt.ParseOption
	clock      func() time.Time
	httpClient *http.Client
	logger     observability.Logger
	metrics    *Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock sets the time source used for exp, nbf and iat checks.
func WithClock(clock func() time.Time) Option {
	return func(v *Verifier) {
		v.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(v *Verifier) {
		v.metrics = metrics
	}
}

// WithHTTPClient sets the client used to fetch a remote key set.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.httpClient = client
	}
}

// NewVerifier builds a verifier from cfg. When a JWKS URL is configured the
// key set is fetched once here and refreshed in the background until ctx ends.
func NewVerifier(ctx context.Context, cfg Config, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Verifier{
		clock:  time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if len(cfg.StaticKeys) > 0 {
		set, err := staticKeySet(cfg.StaticKeys)
		if err != nil {
			return nil, err
		}
		v.parseOpts = append(v.parseOpts, jwt.WithKeySet(set, jws.WithUseDefault(true)))
	}
	if cfg.JWKSUrl != "" {
		set, err := remoteKeySet(ctx, &cfg, v.httpClient)
		if err != nil {
			return nil, err
		}
		v.parseOpts = append(v.parseOpts, jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)))
	}

	v.parseOpts = append(v.parseOpts,
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return v.clock() })),
		jwt.WithAcceptableSkew(cfg.ClockSkew),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if cfg.Issuer != "" {
		v.parseOpts = append(v.parseOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.parseOpts = append(v.parseOpts, jwt.WithAudience(cfg.Audience))
	}
	for _, claim := range cfg.RequiredClaims {
		v.parseOpts = append(v.parseOpts, jwt.WithRequiredClaim(claim))
	}

	return v, nil
}

// Verify checks the token's signature, expiry, issuer and required claims.
// Every failure matches ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	start := time.Now()

	_, span := tracer.Start(ctx, "jwt.Verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	identity, err := v.verify(raw)
	duration := time.Since(start)

	if err != nil {
		reason := reasonFor(err)
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(attribute.String("jwt.reason", reason))
		v.metrics.RecordVerification("rejected", reason, duration)
		v.logger.Debug("token rejected",
			observability.String("reason", reason),
			observability.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("jwt.subject", identity.Subject))
	v.metrics.RecordVerification("verified", "", duration)
	return identity, nil
}

func (v *Verifier) verify(raw string) (*Identity, error) {
	if raw == "" {
		return nil, NewValidationError("empty token", ErrEmptyToken)
	}

	tok, err := jwt.ParseString(raw, v.parseOpts...)
	if err != nil {
		return nil, classify(raw, err)
	}
	if tok.Subject() == "" {
		return nil, NewValidationError("subject is empty", ErrTokenMissingClaim)
	}

	return identityFrom(tok), nil
}

func classify(raw string, err error) *ValidationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return NewValidationError("token expired", ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenNotYetValid()), errors.Is(err, jwt.ErrInvalidIssuedAt()):
		return NewValidationError("token not yet valid", ErrTokenNotYetValid)
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return NewValidationError("issuer mismatch", ErrTokenInvalidIssuer)
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return NewValidationError("audience mismatch", ErrTokenInvalidAudience)
	case errors.Is(err, jwt.ErrRequiredClaim()):
		return NewValidationError(err.Error(), ErrTokenMissingClaim)
	case jws.IsVerificationError(err):
		return NewValidationError("signature verification failed", ErrTokenInvalidSignature)
	}

	// A structurally valid JWS that still failed is a key or signature problem.
	if _, perr := jws.ParseString(raw); perr == nil {
		return NewValidationError(err.Error(), ErrTokenInvalidSignature)
	}
	return NewValidationError("malformed token", ErrTokenMalformed)
}

func identityFrom(tok jwt.Token) *Identity {
	id := &Identity{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		ExpiresAt: tok.Expiration(),
		IssuedAt:  tok.IssuedAt(),
	}
	if v, ok := tok.Get("email"); ok {
		id.Email, _ = v.(string)
	}
	if v, ok := tok.Get("username"); ok {
		id.Username, _ = v.(string)
	}
	if v, ok := tok.Get("roles"); ok {
		id.Roles = stringSlice(v)
	}
	return id
}

func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	}
	return nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrEmptyToken):
		return "empty"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, ErrTokenMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrTokenInvalidSignature):
		return "signature"
	default:
		return "malformed"
	}
}
