package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization means the browser session could not be created.
	// The pool caches it, so every later call fails fast until restart.
	ErrInitialization = errors.New("browser session initialization failed")

	// ErrSubmissionTimeout means the conversation redirect did not appear
	// within the explicit wait bound.
	ErrSubmissionTimeout = errors.New("timed out waiting for conversation redirect")
)

// SubmitError is a classified failure raised during the submission phase.
type SubmitError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("submission failed (%s): %s", e.Kind, e.Detail)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// NewSubmitError wraps err with a classification.
func NewSubmitError(kind ErrorKind, detail string, err error) *SubmitError {
	return &SubmitError{Kind: kind, Detail: detail, Err: err}
}
