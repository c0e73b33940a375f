package realtime

import (
	"errors"
	"fmt"
)

// ErrUnknownEventType reports an inbound event whose "type" discriminator is
// not part of the protocol. Recoverable: the session answers with a warning
// error event and stays active.
var ErrUnknownEventType = errors.New("realtime: unknown event type")

// MalformedEventError reports an inbound message that failed validation:
// invalid JSON, a missing discriminator, or missing required fields.
// Recoverable in the same way as ErrUnknownEventType.
type MalformedEventError struct {
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("realtime: malformed event: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("realtime: malformed event: %s", e.Detail)
}

// Unwrap returns the wrapped cause, if any.
func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

func malformed(detail string, err error) *MalformedEventError {
	return &MalformedEventError{Detail: detail, Err: err}
}
