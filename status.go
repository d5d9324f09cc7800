// Package idetgo is an embeddable CPU image-detection core: a facade over
// ONNX-based DBNet text-region and SCRFD face detectors, with the geometry,
// tensor-layout, NMS, tiling and CPU-placement machinery they share.
package idetgo

import "fmt"

// Code is a compact, machine-readable outcome classification. Values are
// part of the public contract: do not reorder or renumber.
type Code uint8

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodeUnsupported
	CodeDecodeError
	CodeInternal
	CodeOutOfMemory
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeNotFound:
		return "not_found"
	case CodeUnsupported:
		return "unsupported"
	case CodeDecodeError:
		return "decode_error"
	case CodeInternal:
		return "internal"
	case CodeOutOfMemory:
		return "out_of_memory"
	default:
		return "unknown"
	}
}

// Status is the error type returned across the library boundary. It carries
// a Code alongside a human-readable message intended for logs. Status
// implements error so it composes with errors.Is/errors.As and %w wrapping.
type Status struct {
	code    Code
	message string
}

// Ok reports whether the status represents success.
func (s *Status) Ok() bool {
	return s == nil || s.code == CodeOK
}

// Code returns the machine-readable outcome classification.
func (s *Status) Code() Code {
	if s == nil {
		return CodeOK
	}
	return s.code
}

func (s *Status) Error() string {
	if s == nil {
		return "ok"
	}
	if s.message == "" {
		return s.code.String()
	}
	return fmt.Sprintf("%s: %s", s.code, s.message)
}

func newStatus(code Code, msg string) *Status {
	return &Status{code: code, message: msg}
}

// ErrInvalidArgument builds an InvalidArgument status.
func ErrInvalidArgument(msg string) *Status { return newStatus(CodeInvalidArgument, msg) }

// ErrNotFound builds a NotFound status.
func ErrNotFound(msg string) *Status { return newStatus(CodeNotFound, msg) }

// ErrUnsupported builds an Unsupported status.
func ErrUnsupported(msg string) *Status { return newStatus(CodeUnsupported, msg) }

// ErrDecode builds a DecodeError status.
func ErrDecode(msg string) *Status { return newStatus(CodeDecodeError, msg) }

// ErrInternal builds an Internal status.
func ErrInternal(msg string) *Status { return newStatus(CodeInternal, msg) }

// ErrOutOfMemory builds an OutOfMemory status.
func ErrOutOfMemory(msg string) *Status { return newStatus(CodeOutOfMemory, msg) }

// CodeOf extracts the Code from any error produced by this package, falling
// back to CodeInternal for errors that did not originate here.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var st *Status
	if ok := asStatus(err, &st); ok {
		return st.Code()
	}
	return CodeInternal
}

func asStatus(err error, target **Status) bool {
	for err != nil {
		if st, ok := err.(*Status); ok {
			*target = st
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
