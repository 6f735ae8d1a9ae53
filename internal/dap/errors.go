package dap

import "errors"

var (
	// ErrTransportClosed is returned for in-flight and new requests once the adapter connection is gone.
	ErrTransportClosed = errors.New("debug adapter connection closed")

	// ErrRequestTimeout is returned when the adapter does not answer within the request timeout.
	ErrRequestTimeout = errors.New("debug adapter request timed out")
)
