package external

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorityTimeout means the engine did not answer within the timeout.
	ErrAuthorityTimeout = errors.New("authority timeout")

	// ErrAuthorityUnavailable means the engine was unreachable or failed at the transport level.
	ErrAuthorityUnavailable = errors.New("authority unavailable")

	// ErrUnsupported means the engine cannot store or list relationships.
	ErrUnsupported = errors.New("operation not supported by authority")
)

// HTTPError is a non-success response from an engine.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("authority returned status %d: %s", e.StatusCode, e.Body)
}

// IsAuthorityError reports whether err is one of the two authority failures.
func IsAuthorityError(err error) bool {
	return errors.Is(err, ErrAuthorityTimeout) || errors.Is(err, ErrAuthorityUnavailable)
}
