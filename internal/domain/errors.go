package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks a network or upstream service failure. The affected
	// level keeps its prior state and the user may retry by re-selecting.
	ErrTransport = errors.New("location data service unavailable")

	// ErrResolutionNotFound means the coordinates map to no known place.
	ErrResolutionNotFound = errors.New("no weather/location data here")

	// ErrHierarchyNotFound means a resolved name has no hierarchy record.
	ErrHierarchyNotFound = errors.New("no hierarchy record for place")

	// ErrStaleFetch marks a result that arrived after a newer request for the
	// same slot was issued. Never shown to users.
	ErrStaleFetch = errors.New("stale fetch discarded")

	ErrInvalidLevel       = errors.New("invalid hierarchy level")
	ErrParentUnset        = errors.New("parent level is not selected")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// TransportError wraps a failure talking to an external collaborator.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError wraps err for the named operation. A nil err yields nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
