// Package external is the client side of the remote policy engine.
//
// A Backend speaks one engine's wire protocol (OpenFGA or OPA). Client wraps a
// Backend with the per-call timeout, an optional circuit breaker and an
// optional client-side rate limit, and normalizes every failure into
// ErrAuthorityTimeout or ErrAuthorityUnavailable. Client never retries.
package external
