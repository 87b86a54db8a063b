// Package jwt verifies bearer tokens.
//
// Verification covers signature, expiry, not-before, issuer, audience and the
// required claims (sub and exp are always required). Keys come from static
// configuration or from a remote JWKS document refreshed in the background.
// Every rejection wraps ErrInvalidToken.
package jwt
