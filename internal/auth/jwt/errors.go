package jwt

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is matched by every verification failure. Callers that
// only need the terminal rejection reason test for it with errors.Is.
var ErrInvalidToken = errors.New("invalid token")

// Sentinel errors describing why a token was rejected.
var (
	ErrEmptyToken            = errors.New("token is empty")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenNotYetValid      = errors.New("token is not yet valid")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenInvalidIssuer    = errors.New("token issuer is invalid")
	ErrTokenInvalidAudience  = errors.New("token audience is invalid")
	ErrTokenMissingClaim     = errors.New("required claim is missing")
	ErrKeyNotFound           = errors.New("signing key not found")
)

// Errors returned by ExtractBearer.
var (
	ErrMissingHeader = errors.New("missing authorization header")
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
)

// ValidationError wraps a verification failure with its cause.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt validation error: %s: %v", e.Message, e.Cause)
	}
	return "jwt validation error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is reports ErrInvalidToken for every validation error.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidToken {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}

// IsExpiredError checks if an error indicates token expiration.
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
