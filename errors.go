package obu

import (
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by this package matches exactly one of them with errors.Is.
var (
	// ErrMalformed marks a bitstream that breaks the AV1 syntax: forbidden or reserved bits set,
	// bad padding or trailing bits, truncated data.
	ErrMalformed = errors.New("malformed bitstream")
	// ErrUnsupported marks a well-formed stream using a feature this codec rejects on purpose.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrBounds marks a value outside its allowed range.
	ErrBounds = errors.New("bounds violation")
)

// Error carries the kind of a failure together with its cause.
type Error struct {
	Kind error
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func malformedf(format string, args ...interface{}) error {
	return &Error{Kind: ErrMalformed, err: errors.Errorf(format, args...)}
}

func unsupportedf(format string, args ...interface{}) error {
	return &Error{Kind: ErrUnsupported, err: errors.Errorf(format, args...)}
}

func boundsf(format string, args ...interface{}) error {
	return &Error{Kind: ErrBounds, err: errors.Errorf(format, args...)}
}

// readErr classifies a bit cursor failure while parsing.
func readErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrMalformed, err: errors.Wrap(err, what)}
}

// writeErr classifies a bit cursor failure while writing.
func writeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrBounds, err: errors.Wrap(err, what)}
}
