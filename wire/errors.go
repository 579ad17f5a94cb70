package wire

import "errors"

// Error kinds returned by the message codec and, by convention, by every
// other component that needs to report one of these categories.
var (
	ErrInvalidData       = errors.New("invalid data")
	ErrTooLarge          = errors.New("payload exceeds negotiated MTU")
	ErrUnsupported       = errors.New("unsupported submessage kind")
	ErrWouldBlock        = errors.New("operation would block")
	ErrTimeout           = errors.New("operation timed out")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrUnknownReference  = errors.New("unknown reference")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMismatch          = errors.New("representation mismatch")
	ErrIncompatible      = errors.New("incompatible version")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrWriteFailed       = errors.New("write failed")
	ErrInternal          = errors.New("internal error")
)
