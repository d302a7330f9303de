package remote

import (
	"errors"
	"fmt"
)

// ErrOffline is raised by the offline guard before any network I/O is
// attempted when no usable network interface is up.
var ErrOffline = errors.New("device is offline")

// TransportError reports a network or HTTP failure mid-call. Status is
// zero when the failure happened below the HTTP layer.
type TransportError struct {
	Op     string // "createBoard", "listStacks", ...
	Status int    // HTTP status code, 0 for network-level failures
	Err    error  // underlying error, nil for pure HTTP failures
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: server returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that could not be deserialized.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s returned an unreadable response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransportFailure reports whether err is an offline, transport or
// decode failure. The sync engine uses this to decide that a scope's
// sync must be aborted and the watermark left untouched.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var de *DecodeError
	return errors.As(err, &de)
}
