package storage

import "errors"

var (
	// ErrNotFound means no launch or scan matched the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means a record with the same ID was already stored.
	// Launch and scan records are written once and never updated.
	ErrDuplicateKey = errors.New("record already exists")

	// ErrInvalidInput means a record is missing a required column.
	ErrInvalidInput = errors.New("invalid record")
)
