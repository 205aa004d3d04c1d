package types

import (
	"errors"
	"fmt"
)

// Processing error taxonomy
var (
	// ErrSyntax marks unparseable source; the file is still processed as text
	ErrSyntax = errors.New("syntax error")
	// ErrIO marks an unreadable file; the file fails, the batch continues
	ErrIO = errors.New("io error")
	// ErrCollaborator marks an embedder or storage sink failure for one chunk
	ErrCollaborator = errors.New("collaborator error")
	// ErrLimitExceeded marks a file-count or file-size cap being hit
	ErrLimitExceeded = errors.New("limit exceeded")
)

// ProcessingError attaches a taxonomy kind and a path to an underlying error
type ProcessingError struct {
	Kind error
	Path string
	Err  error
}

// NewProcessingError wraps err with a kind and path
func NewProcessingError(kind error, path string, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Path: path, Err: err}
}

// Error implements the error interface
func (e *ProcessingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is
func (e *ProcessingError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
