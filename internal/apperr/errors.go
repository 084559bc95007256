package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidKind marks a node constructed with an unrecognised kind tag.
	ErrInvalidKind = errors.New("invalid node kind")
	// ErrDanglingReference marks an edge whose endpoint is not in the document.
	ErrDanglingReference = errors.New("dangling node reference")
	ErrNotCanvas         = errors.New("note is not a canvas")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrInvalidReference marks a note reference the picker would not offer.
	ErrInvalidReference = errors.New("invalid note reference")
)
