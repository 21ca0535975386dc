package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlocked means the model returned no candidates or refused the content.
var ErrBlocked = errors.New("model response blocked or empty")

// TransportError is a failed call to the model endpoint: network failure or a non-OK status.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means the model could not be used at all:
// a transport failure, a blocked response, or a timeout.
func IsUnavailable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) ||
		errors.Is(err, ErrBlocked) ||
		errors.Is(err, context.DeadlineExceeded)
}
