package wms

import (
	"errors"
	"fmt"
)

var ErrLayerNotFound = errors.New("named layer not found in capabilities document")

// TransportError is returned when the service address could not be reached
// or answered with a non-success status.
type TransportError struct {
	Text string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Text, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the capabilities document was retrieved but
// could not be turned into a layer configuration.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
