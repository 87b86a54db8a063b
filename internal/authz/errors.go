package authz

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is matched by every RejectionError.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidRequest means relation or object was empty.
var ErrInvalidRequest = errors.New("relation and object are required")

// ErrInvalidRelationship means a relationship write was empty or had an empty field.
var ErrInvalidRelationship = errors.New("relationships need subject, relation and object")

// ErrInvalidListRequest means relation or object type was empty.
var ErrInvalidListRequest = errors.New("relation and type are required")

// Rejection reasons. They are kept for logs and metrics and are never shown
// to callers.
const (
	ReasonInvalidToken    = "invalid_token"
	ReasonSessionRevoked  = "session_revoked"
	ReasonSessionNotFound = "session_not_found"
)

// RejectionError is a terminal rejection. It is never retried.
type RejectionError struct {
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return fmt.Sprintf("unauthorized: %s: %v", e.Reason, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnauthorized.
func (e *RejectionError) Is(target error) bool {
	return target == ErrUnauthorized
}

func reject(reason string, err error) *RejectionError {
	return &RejectionError{Reason: reason, Err: err}
}

// RejectionReason returns the reason code of a RejectionError in err's chain.
func RejectionReason(err error) (string, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}
