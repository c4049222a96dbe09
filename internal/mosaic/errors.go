package mosaic

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by *FormatError and *IOError. Match them with errors.Is.
var (
	ErrBadMagic       = errors.New("bad magic")
	ErrTruncated      = errors.New("truncated")
	ErrInvalidField   = errors.New("invalid field value")
	ErrUnknownCodec   = errors.New("unknown compression codec")
	ErrSizeMismatch   = errors.New("size mismatch")
	ErrCorruptPayload = errors.New("corrupt payload")
)

// FormatError reports a structurally invalid mosaic file. It is never retryable.
type FormatError struct {
	Field    string // header field or pipeline stage the error refers to
	Expected any    // optional
	Actual   any    // optional
	Err      error  // one of the sentinel errors above, possibly wrapping a cause
}

func (e *FormatError) Error() string {
	msg := "mosaic: format error"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Err.Error()
	switch {
	case e.Expected != nil && e.Actual != nil:
		msg += fmt.Sprintf(" (expected %v, got %v)", e.Expected, e.Actual)
	case e.Actual != nil:
		msg += fmt.Sprintf(" (got %v)", e.Actual)
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnsupportedError reports a compression codec the format declares but this
// package does not implement. It unwraps to errors.ErrUnsupported.
type UnsupportedError struct {
	Codec Codec
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("mosaic: unsupported compression codec %d (%s)", int16(e.Codec), e.Codec)
}

func (e *UnsupportedError) Unwrap() error { return errors.ErrUnsupported }

// IOError reports a failure reading the underlying stream. Callers reading
// from a file or network stream may retry; DecodeBytes never returns one for
// truncated input.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "mosaic: " + e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// Retryable reports whether err belongs to the retryable class (I/O failures).
// It is meaningful for file and stream sources only.
func Retryable(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// ErrorClass names the taxonomy class of err: "format", "unsupported", "io" or "other".
func ErrorClass(err error) string {
	var (
		formatErr      *FormatError
		unsupportedErr *UnsupportedError
		ioErr          *IOError
	)
	switch {
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &unsupportedErr):
		return "unsupported"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}

func invalidField(field string, actual any) error {
	return &FormatError{Field: field, Actual: actual, Err: ErrInvalidField}
}

func sizeMismatch(field string, expected, actual int64) error {
	return &FormatError{Field: field, Expected: expected, Actual: actual, Err: ErrSizeMismatch}
}
