package speech

import "fmt"

// UnavailableError reports that a backing service failed its health probe
// or refused the initial connection. Raised only at session start; a
// session that sees it never becomes active.
type UnavailableError struct {
	Service string
	Err     error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("speech: %s unavailable: %v", e.Service, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// StreamFaultError reports that a backing service connection broke
// mid-session. Fatal to the owning session; all three clients and the
// codec are released in response.
type StreamFaultError struct {
	Service string
	Err     error
}

// Error implements the error interface.
func (e *StreamFaultError) Error() string {
	return fmt.Sprintf("speech: %s stream fault: %v", e.Service, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StreamFaultError) Unwrap() error {
	return e.Err
}
