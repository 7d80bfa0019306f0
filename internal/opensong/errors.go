package opensong

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable  = errors.New("opensong: host unreachable or transport failure")
	ErrBadStatus    = errors.New("opensong: unexpected HTTP status")
	ErrBadResponse  = errors.New("opensong: invalid response format or malformed data")
	ErrMissingSlide = errors.New("opensong: slide element missing from document")
)

// APIError wraps the sentinel errors with request context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("opensong: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
