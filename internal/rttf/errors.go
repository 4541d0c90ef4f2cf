package rttf

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the source reported the document as missing, as
// opposed to a transient fetch failure. For event details this drives the
// terminal transition rather than error handling.
var ErrNotFound = errors.New("document not found")

// ParseError indicates a malformed document. It is distinct from an empty
// document: a page with zero rows parses cleanly into empty results, while a
// page missing expected structure fails with a ParseError.
type ParseError struct {
	Stage  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %s", e.Stage, e.Reason)
}

func newParseError(stage, format string, args ...any) *ParseError {
	return &ParseError{
		Stage:  stage,
		Reason: fmt.Sprintf(format, args...),
	}
}
