package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is returned by a Conn when the peer ended the stream.
	// It is expected and never surfaces from PumpOnce as an error.
	ErrStreamClosed = errors.New("stream closed")

	// ErrTransport wraps unexpected I/O faults.
	ErrTransport = errors.New("transport error")

	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionError reports a failed handshake or subscription. Retryable.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
