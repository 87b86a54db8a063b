package session

import "errors"

var (
	// ErrSessionNotFound means no live session matches the token fingerprint.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked means the session exists but has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrStoreUnavailable wraps backend failures; it is transient.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrRecordNotFound is returned by a Store when the fingerprint is unknown.
	ErrRecordNotFound = errors.New("session record not found")

	// ErrDuplicateRecord is returned by Create for an existing fingerprint.
	ErrDuplicateRecord = errors.New("session record already exists")
)
