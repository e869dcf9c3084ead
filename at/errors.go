package at

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferTooSmall is matched by *BufferTooSmallError.
	ErrBufferTooSmall = errors.New("at: buffer too small")

	// ErrParse is matched by *ParseError and *ResponseError.
	ErrParse = errors.New("at: parse failed")

	// ErrCommandFailed is matched by *ResultError.
	//
	// It means the modem answered the command with a final result code other
	// than OK.
	ErrCommandFailed = errors.New("at: command failed")

	// ErrParamsNotAllowed is returned when a Request carries parameters for a
	// kind other than KindSet.
	ErrParamsNotAllowed = errors.New("at: parameters are only allowed on set commands")

	// ErrInvalidParameter is returned when a string parameter would break out
	// of its quotes or the command line.
	ErrInvalidParameter = errors.New("at: string parameter contains a quote or line break")

	// ErrUnknownKind is returned by ParseKind for unrecognised names.
	ErrUnknownKind = errors.New("at: unknown command kind")

	ErrFieldIndex = errors.New("at: field index out of range")
	ErrFieldType  = errors.New("at: field type mismatch")
	ErrScanArity  = errors.New("at: scan destination count mismatch")
)

// BufferTooSmallError reports that a command did not fit into the buffer it was
// built in. Required is the exact length the command needs, so callers can
// resize to it and build again.
type BufferTooSmallError struct {
	Required int
	Capacity int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("at: buffer too small: need %d bytes, have %d", e.Required, e.Capacity)
}

func (e *BufferTooSmallError) Is(target error) bool {
	return target == ErrBufferTooSmall
}

// ParseError holds the buffer offset at which parsing stopped matching the
// expected grammar.
type ParseError struct {
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("at: parse failed at position %d", e.Position)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ResponseError is returned by Parser.FinishOrMatch when the expected grammar
// did not match but one of the known error literals did. Index is the
// position of that literal in the argument list.
type ResponseError struct {
	Index    int
	Literal  string
	Position int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("at: response matched error %q", e.Literal)
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrParse
}

// ResultError describes a final result code other than OK.
type ResultError struct {
	// Kind is the result code or error prefix, e.g. "ERROR" or "+CME ERROR:".
	Kind string
	// Code is the numeric error code, or -1 when the modem did not send one
	// (plain ERROR, or verbose +CMEE=2 text).
	Code int32
	// Message is the verbose error text, if any.
	Message string
}

func (e *ResultError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s %s", e.Kind, e.Message)
	case e.Code >= 0:
		return fmt.Sprintf("%s %d", e.Kind, e.Code)
	default:
		return e.Kind
	}
}

func (e *ResultError) Is(target error) bool {
	return target == ErrCommandFailed
}
