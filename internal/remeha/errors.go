package remeha

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned by SetMode for anything but manual, auto or off.
var ErrUnknownMode = errors.New("unknown thermostat mode")

// TransportError means the request never produced an HTTP response, or the
// response body could not be read or decoded.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "remeha transport error"
	}
	return fmt.Sprintf("remeha %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
