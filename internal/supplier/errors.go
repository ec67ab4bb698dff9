package supplier

import (
	"errors"
	"fmt"
)

var (
	// ErrFormNotFound is returned when no candidate form exists on a page.
	ErrFormNotFound = errors.New("form not found")
	// ErrExtractionEmpty marks a listing where no strategy matched, it is
	// reported as zero results rather than a failure.
	ErrExtractionEmpty = errors.New("no records extracted")
	// ErrInvalidPayload marks malformed job input, jobs failing with it never
	// touch the network.
	ErrInvalidPayload = errors.New("invalid payload")
)

// NetworkError is a transport failure or an unexpected HTTP status while
// talking to the supplier portal.
type NetworkError struct {
	Method string
	URL    string
	// Status is 0 when the request never got a response.
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("network error: %s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ExternalAPIError wraps any failure of the trading API.
type ExternalAPIError struct {
	Op  string
	Err error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("external api: %s: %v", e.Op, e.Err)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

func InvalidPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}
