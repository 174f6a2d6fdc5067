package edge

import (
	"errors"
	"fmt"
)

// ErrTimeout reports that a watch exceeded its caller-supplied deadline.
var ErrTimeout = errors.New("todo stream timeout")

// ErrClosed reports use of a client after Close.
var ErrClosed = errors.New("edge client closed")

// StreamError is a transport-level stream failure. Never retried at this
// layer; surfaced as-is to the caller.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
