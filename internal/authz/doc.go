// Package authz decides whether an authenticated caller may act on an object.
//
// The Coordinator runs each request through a fixed pipeline: bearer token
// verification, session revocation lookup, then the DecisionCache, which
// consults the remote policy engine only on a miss. Concurrent misses for the
// same Key share one engine call. Engine failures resolve to a fail-closed Deny
// that is never cached.
package authz
