package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionActive = errors.New("a connection is already active")
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrTimeout          = errors.New("timeout")
	ErrNegotiation      = errors.New("negotiation failed")
	ErrChannelClosed    = errors.New("channel closed")
	ErrChannelNotOpen   = errors.New("channel not open")
	ErrDeclined         = errors.New("receiver declined the transfer")
	ErrCancelled        = errors.New("transfer cancelled")
	ErrNoSource         = errors.New("nothing to send")
	ErrShortSource      = errors.New("file ended before its announced size")
	ErrChunkBeforeMeta  = errors.New("chunk received before meta")
	ErrInvalidControl   = errors.New("invalid control message")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
