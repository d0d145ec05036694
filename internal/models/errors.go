package models

import "errors"

var (
	// ErrNotFound marks a missing project, sprint, story or user.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a violated sprint/story invariant.
	ErrConflict = errors.New("conflict")
	// ErrInvalid marks malformed input.
	ErrInvalid = errors.New("invalid input")
	// ErrForbidden marks a caller lacking the required capability.
	ErrForbidden = errors.New("forbidden")
)
