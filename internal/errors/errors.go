// Package errors defines the error taxonomy of the import pipeline. Callers
// check categories with errors.Is against the sentinels or with the Is*
// helpers, which see through wrapping.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New is the standard library errors.New, re-exported for convenience.
var New = errors.New

var (
	// ErrParse indicates the uploaded file could not be tokenized.
	ErrParse = errors.New("parse error")

	// ErrTransport indicates a chunk submission failed.
	ErrTransport = errors.New("transport error")

	// ErrConfirmationRequired indicates an unconfirmed manual edit blocks progress.
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrStageBlocked indicates the pipeline cannot advance from its current stage.
	ErrStageBlocked = errors.New("stage blocked")

	// ErrMappingFrozen indicates an attempt to change a mapping after the pipeline advanced.
	ErrMappingFrozen = errors.New("mapping is frozen")

	// ErrCanceled indicates the user abandoned the import between chunks.
	ErrCanceled = errors.New("import canceled")

	// ErrInvalidTransition indicates a state machine received an event it cannot accept.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput indicates bad arguments or configuration.
	ErrInvalidInput = errors.New("invalid input")
)

// ParseError is raised before mapping begins when the source file is malformed.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse %s at line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NewParseError creates a ParseError.
func NewParseError(source string, line int, err error) *ParseError {
	return &ParseError{Source: source, Line: line, Err: err}
}

// TransportError reports a failed chunk. Chunks before Chunk stay applied.
type TransportError struct {
	Chunk           int
	ChunksCompleted int
	StatusCode      int
	Err             error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("chunk %d failed after %d completed chunk(s)", e.Chunk+1, e.ChunksCompleted)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ConfirmationRequiredError names the cell whose edit is awaiting confirmation.
type ConfirmationRequiredError struct {
	OriginalIndex int
	Field         string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("edit of %s on row %d must be confirmed or cancelled", e.Field, e.OriginalIndex+1)
}

func (e *ConfirmationRequiredError) Is(target error) bool {
	return target == ErrConfirmationRequired || target == ErrStageBlocked
}

// StageBlockedError lists every reason the pipeline cannot advance.
type StageBlockedError struct {
	Stage   string
	Reasons []string
}

func (e *StageBlockedError) Error() string {
	return fmt.Sprintf("cannot leave %s: %s", e.Stage, strings.Join(e.Reasons, "; "))
}

func (e *StageBlockedError) Is(target error) bool { return target == ErrStageBlocked }

// TransitionError reports an event a state machine rejected.
type TransitionError struct {
	Machine string
	From    string
	Event   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", e.Machine, e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsTransportError extracts a TransportError from err.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	ok := errors.As(err, &te)
	return te, ok
}

// IsConfirmationRequired reports whether err is or wraps a ConfirmationRequiredError.
func IsConfirmationRequired(err error) bool {
	var ce *ConfirmationRequiredError
	return errors.As(err, &ce)
}
