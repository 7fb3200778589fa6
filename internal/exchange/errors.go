package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrFramingViolation means a body carried more bytes than declared.
	ErrFramingViolation = errors.New("exchange: framing violation")
	// ErrPrematureClose means a body was closed before its declared length
	// was reached.
	ErrPrematureClose = errors.New("exchange: unexpected end of stream")
	// ErrCanceled is wrapped by failures observed after Cancel.
	ErrCanceled = errors.New("exchange: canceled")
	// ErrClosed is returned by operations on an already closed stream.
	ErrClosed = errors.New("exchange: stream closed")
)

// ProtocolError is an I/O or syntax failure reported by the codec.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return "exchange: " + e.Op + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func framingViolation(expected, received int64) error {
	return fmt.Errorf("%w: expected %d bytes but received %d", ErrFramingViolation, expected, received)
}

func prematureClose(expected, received int64) error {
	return fmt.Errorf("%w: expected %d bytes but received %d", ErrPrematureClose, expected, received)
}
