// Package apperr holds the error values shared across FeatherNotes packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidPosition   = errors.New("position out of range")
	ErrStaleHandle       = errors.New("stale node handle")
	ErrAuth              = errors.New("wrong password")
	ErrMalformedDocument = errors.New("malformed document")
	ErrCancelled         = errors.New("cancelled")
)

// IOError reports a failed file operation on a document.
// The in-memory document is never touched when one is returned.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
