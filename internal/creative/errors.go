package creative

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input. It is returned before
// any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ServiceError wraps a failed call to an upstream text or image service.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Service, msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed: rate limiting,
// upstream 5xx and transport failures.
func (e *ServiceError) Retryable() bool {
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == 0 && e.Err != nil:
		return !errors.Is(e.Err, ErrMalformedResponse)
	}
	return false
}

// ErrMalformedResponse marks a 2xx response that did not carry the expected payload.
var ErrMalformedResponse = errors.New("malformed response")

// PackagingError is a filesystem or archive failure. It is fatal for the run.
type PackagingError struct {
	Op   string
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("packaging: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("packaging: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }
