package models

import "errors"

var (
	// ErrUnauthenticated is returned when no user identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when a record could not be updated because
	// it kept changing underneath the writer, or on duplicate keys.
	ErrConflict = errors.New("conflict")
	// ErrPartialFailure is returned when some items of a batch failed.
	ErrPartialFailure = errors.New("partial failure")
)
