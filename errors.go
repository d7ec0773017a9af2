package blobstore

import (
	"errors"
	"fmt"
)

// Kind discriminates the ways a Store operation can fail. It is the
// single error-reporting mechanism for this package; there is no
// separate exception channel.
type Kind string

const (
	// InvalidArgument covers a nil/empty buffer, a zero-length
	// write, a size over MaxBlobBytes, or an unknown Mode.
	InvalidArgument Kind = "InvalidArgument"
	// NotFound is returned by Read and Delete when the blob does not
	// exist. Size reports absence as a zero length instead.
	NotFound Kind = "NotFound"
	// IO covers any underlying filesystem failure.
	IO Kind = "Io"
	// Malformed means the frame's length fields disagree with the
	// bytes actually on disk.
	Malformed Kind = "Malformed"
	// IntegrityMacMismatch means an Authenticated frame's MAC did
	// not verify.
	IntegrityMacMismatch Kind = "IntegrityMacMismatch"
	// IntegritySealMismatch means a Sealed frame's AEAD tag did not
	// verify.
	IntegritySealMismatch Kind = "IntegritySealMismatch"
	// KeyUnavailable means the Platform Secret Store refused to
	// produce a requested key.
	KeyUnavailable Kind = "KeyUnavailable"
	// NonceRollover means the device's nonce slot is exhausted;
	// sealed writes are permanently disabled.
	NonceRollover Kind = "NonceRollover"
	// BufferTooSmall means the caller's read buffer is shorter than
	// the stored payload.
	BufferTooSmall Kind = "BufferTooSmall"
)

// Error is the error type returned by every Store operation. It wraps
// an optional underlying cause and is usable with errors.As and
// errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blobstore: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("blobstore: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, &Error{Kind: NotFound}) reads naturally at call
// sites.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}
